package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
)

// DefaultOpenRouterURL is the OpenRouter OpenAI-compatible endpoint.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// OpenAIConfig configures any OpenAI-compatible chat endpoint (OpenRouter by default).
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Retry   ragerrors.RetryConfig

	// Referer and Title are sent as OpenRouter attribution headers when set.
	Referer string
	Title   string
}

// OpenAIClient completes prompts through go-openai.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
}

var _ Completer = (*OpenAIClient)(nil)

// NewOpenAIClient validates cfg and builds the client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, ragerrors.New(ragerrors.ErrCodeMissingAPIKey, "LLM API key not configured", nil).
			WithSuggestion("export OPENROUTER_API_KEY or set llm.api_key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = ragerrors.DefaultRetryConfig()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientCfg.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &headerTransport{referer: cfg.Referer, title: cfg.Title, base: http.DefaultTransport},
	}

	return &OpenAIClient{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// Model returns the configured model id.
func (c *OpenAIClient) Model() string { return c.cfg.Model }

// Complete sends one chat completion, retrying transient failures.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: temperature(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	}

	start := time.Now()
	resp, err := ragerrors.RetryWithResult(ctx, c.cfg.Retry, func() (openai.ChatCompletionResponse, error) {
		r, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return r, parseAPIError(err)
		}
		return r, nil
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ragerrors.New(ragerrors.ErrCodeCompletionFailed, "completion returned no choices", nil)
	}

	slog.Debug("llm_completion",
		slog.String("model", c.cfg.Model),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens),
		slog.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}

// temperature maps 0 to the smallest positive float: go-openai drops a zero
// temperature from the payload and the server would apply its default.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func parseAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		re := ragerrors.FromHTTPStatus(apiErr.HTTPStatusCode, ragerrors.ErrCodeCompletionFailed,
			fmt.Sprintf("API Error %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
		re.Cause = err
		return re
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		re := ragerrors.FromHTTPStatus(reqErr.HTTPStatusCode, ragerrors.ErrCodeCompletionFailed,
			fmt.Sprintf("API Error %d: %s", reqErr.HTTPStatusCode, strings.TrimSpace(string(reqErr.Body))))
		re.Cause = err
		return re
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return ragerrors.New(ragerrors.ErrCodeServiceUnavailable, "completion request failed", err)
}

// headerTransport adds OpenRouter attribution headers.
type headerTransport struct {
	referer string
	title   string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.referer == "" && t.title == "" {
		return t.base.RoundTrip(r)
	}
	r = r.Clone(r.Context())
	if t.referer != "" {
		r.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		r.Header.Set("X-Title", t.title)
	}
	return t.base.RoundTrip(r)
}
