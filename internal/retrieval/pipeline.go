package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/russo2100/trading-analytics-rag/internal/config"
	"github.com/russo2100/trading-analytics-rag/internal/telemetry"
)

// DefaultOversample is how many candidates per requested result are handed
// to the reranker.
const DefaultOversample = 3

// Pipeline is hybrid retrieval followed by reranking.
type Pipeline struct {
	hybrid     Retriever
	reranker   *Reranker
	oversample int
	metrics    *telemetry.Metrics
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithOversample sets the candidate multiplier. Values <= 0 keep the default.
func WithOversample(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.oversample = n
		}
	}
}

// WithPipelineMetrics attaches metrics.
func WithPipelineMetrics(m *telemetry.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a pipeline.
func NewPipeline(hybrid Retriever, reranker *Reranker, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{hybrid: hybrid, reranker: reranker, oversample: DefaultOversample}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Retrieve returns at most topK results. When the reranker fails the fused
// order is kept.
func (p *Pipeline) Retrieve(ctx context.Context, text string, topK int, filters map[string]string) ([]Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	q := SearchQuery{
		Text:     text,
		TopK:     topK * p.oversample,
		Filters:  filters,
		Strategy: StrategyHybrid,
	}
	start := time.Now()

	candidates, err := p.hybrid.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	ranked := candidates
	if p.reranker != nil {
		reranked, err := p.reranker.Rerank(ctx, text, candidates)
		if err != nil {
			slog.Warn("rerank_failed_keeping_fused_order",
				slog.String("query", text),
				slog.Int("candidates", len(candidates)),
				slog.String("error", err.Error()))
			p.metrics.Degraded("reranker")
		} else {
			ranked = reranked
		}
	}

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	p.metrics.ObserveStage(telemetry.StagePipeline, time.Since(start), len(ranked))
	slog.Info("pipeline_retrieve",
		slog.String("query", text),
		slog.Int("top_k", topK),
		slog.Int("candidates", len(candidates)),
		slog.Int("results", len(ranked)))
	return ranked, nil
}

// FormatContext renders results as numbered blocks for a prompt, in input order.
func FormatContext(results []Result) string {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		blocks = append(blocks, fmt.Sprintf("[Document %d]\nSource: %s\nDate: %s\nContent: %s",
			i+1,
			metaString(r.Metadata, "source", "unknown"),
			metaString(r.Metadata, "freshness", "unknown_date"),
			r.Content))
	}
	return strings.Join(blocks, "\n\n")
}

func metaString(meta map[string]any, key, def string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return def
	}
	s := fmt.Sprint(v)
	if s == "" {
		return def
	}
	return s
}

// NewScorer builds the configured scorer. Provider "none" returns a nil
// Scorer, meaning fused order is final.
func NewScorer(cfg config.RerankConfig) (Scorer, error) {
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "", "lexical":
		return LexicalScorer{}, nil
	case "http":
		return NewHTTPScorer(HTTPScorerConfig{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			Timeout:  config.Duration(cfg.Timeout, DefaultScorerTimeout),
		}), nil
	default:
		return nil, fmt.Errorf("unknown rerank provider %q", cfg.Provider)
	}
}
