package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
)

// OpenAIConfig configures an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
	Retry      ragerrors.RetryConfig
}

// OpenAIEmbedder uses any OpenAI-compatible /embeddings API.
type OpenAIEmbedder struct {
	cfg    OpenAIConfig
	client *openai.Client

	mu   sync.RWMutex
	dims int
}

// NewOpenAIEmbedder creates the embedder. Missing API key is a config error.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, ragerrors.New(ragerrors.ErrCodeMissingAPIKey, "openai embeddings require an API key", nil).
			WithSuggestion("export OPENAI_API_KEY or set embeddings.api_key")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = ragerrors.DefaultRetryConfig()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
		dims:   cfg.Dimensions,
	}, nil
}

// Embed generates embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in batches, preserving input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, batch := range batches(texts, e.cfg.BatchSize) {
		vecs, err := ragerrors.RetryWithResult(ctx, e.cfg.Retry, func() ([][]float32, error) {
			return e.doEmbed(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(e.cfg.Model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.cfg.Dimensions > 0 {
		req.Dimensions = e.cfg.Dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, parseAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, ragerrors.New(ragerrors.ErrCodeLengthMismatch,
			fmt.Sprintf("embedding API returned %d vectors for %d texts", len(resp.Data), len(texts)), nil)
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = normalizeVector(d.Embedding)
	}

	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(vecs[0])
	}
	e.mu.Unlock()
	return vecs, nil
}

// parseAPIError maps go-openai errors onto retryable or terminal RAGErrors.
func parseAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		re := ragerrors.FromHTTPStatus(apiErr.HTTPStatusCode, ragerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedding API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
		re.Cause = err
		return re
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		re := ragerrors.FromHTTPStatus(reqErr.HTTPStatusCode, ragerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedding API error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body)))
		re.Cause = err
		return re
	}
	return ragerrors.New(ragerrors.ErrCodeServiceUnavailable, "embedding request failed", err)
}

// Dimensions returns the configured or learned dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

func (e *OpenAIEmbedder) ModelName() string { return e.cfg.Model }

// Available probes the models endpoint.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	_, err := e.client.ListModels(ctx)
	return err == nil
}

func (e *OpenAIEmbedder) Close() error { return nil }
