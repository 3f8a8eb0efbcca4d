package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
)

// HTTP scorer defaults.
const (
	DefaultScorerEndpoint = "http://localhost:9659"
	DefaultScorerModel    = "reranker-small"
	DefaultScorerTimeout  = 30 * time.Second
)

// HTTPScorerConfig configures a cross-encoder reranking service.
type HTTPScorerConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration

	// Instruction is forwarded to models that accept a task prompt.
	Instruction string
}

// HTTPScorer calls a /rerank service. Repeated failures open a circuit
// breaker so a dead service costs one fast error per query.
type HTTPScorer struct {
	cfg     HTTPScorerConfig
	client  *http.Client
	breaker *ragerrors.CircuitBreaker
}

var _ Scorer = (*HTTPScorer)(nil)

// NewHTTPScorer creates a scorer. No request is made until Score or Available.
func NewHTTPScorer(cfg HTTPScorerConfig) *HTTPScorer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultScorerEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultScorerModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultScorerTimeout
	}
	return &HTTPScorer{
		cfg: cfg,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		breaker: ragerrors.NewCircuitBreaker("reranker",
			ragerrors.WithMaxFailures(3),
			ragerrors.WithResetTimeout(30*time.Second)),
	}
}

type rerankRequest struct {
	Query       string   `json:"query"`
	Documents   []string `json:"documents"`
	Model       string   `json:"model,omitempty"`
	Instruction string   `json:"instruction,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index    int     `json:"index"`
		Score    float64 `json:"score"`
		Document string  `json:"document"`
	} `json:"results"`
	Model            string  `json:"model"`
	Count            int     `json:"count"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// Score posts all documents in one request and maps results back to input
// order by index.
func (s *HTTPScorer) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return []float64{}, nil
	}
	return ragerrors.Execute(s.breaker, func() ([]float64, error) {
		return s.score(ctx, query, docs)
	})
}

func (s *HTTPScorer) score(ctx context.Context, query string, docs []string) ([]float64, error) {
	start := time.Now()

	body, err := json.Marshal(rerankRequest{
		Query:       query,
		Documents:   docs,
		Model:       s.cfg.Model,
		Instruction: s.cfg.Instruction,
		TopK:        len(docs),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.cfg.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeServiceUnavailable, "rerank request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, ragerrors.FromHTTPStatus(resp.StatusCode, ragerrors.ErrCodeRerankFailed,
			fmt.Sprintf("rerank failed (status %d): %s", resp.StatusCode, string(msg)))
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeRerankFailed, "failed to decode rerank response", err)
	}
	if len(out.Results) != len(docs) {
		return nil, fmt.Errorf("%w: service returned %d results for %d documents",
			ErrScoreCountMismatch, len(out.Results), len(docs))
	}

	scores := make([]float64, len(docs))
	seen := make([]bool, len(docs))
	for _, r := range out.Results {
		if r.Index < 0 || r.Index >= len(docs) || seen[r.Index] {
			return nil, ragerrors.New(ragerrors.ErrCodeRerankFailed,
				fmt.Sprintf("rerank result index %d out of range", r.Index), nil)
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}

	slog.Debug("rerank_http",
		slog.Int("doc_count", len(docs)),
		slog.Duration("total", time.Since(start)),
		slog.Float64("server_time_ms", out.ProcessingTimeMs))
	return scores, nil
}

// Available reports whether GET /health answers 200.
func (s *HTTPScorer) Available(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, s.cfg.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (s *HTTPScorer) Close() error {
	if t, ok := s.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}
