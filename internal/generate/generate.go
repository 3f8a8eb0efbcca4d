// Package generate answers a question in one shot: retrieve context, then
// ask the model with the trading analyst prompt.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/russo2100/trading-analytics-rag/internal/cache"
	"github.com/russo2100/trading-analytics-rag/internal/llm"
	"github.com/russo2100/trading-analytics-rag/internal/retrieval"
	"github.com/russo2100/trading-analytics-rag/internal/telemetry"
)

// Defaults.
const (
	DefaultTopK          = 5
	DefaultContextTokens = 6000
	DefaultTemperature   = 0.3
	DefaultMaxTokens     = 2000
)

// NoContextAnswer is returned without calling the model when retrieval is empty.
const NoContextAnswer = "I couldn't find any relevant information in the database to answer your question."

const truncatedSuffix = "...(truncated)"

// Retriever is satisfied by *retrieval.Pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, text string, topK int, filters map[string]string) ([]retrieval.Result, error)
}

// TokenCounter estimates context size.
type TokenCounter interface {
	Count(text string) int
}

type charCounter struct{}

func (charCounter) Count(text string) int { return (len(text) + 3) / 4 }

// Config tunes generation.
type Config struct {
	TopK          int
	ContextTokens int
	Temperature   float64
	MaxTokens     int
}

// Generator is the direct retrieve-then-answer path.
type Generator struct {
	retriever Retriever
	completer llm.Completer
	cache     cache.Cache
	counter   TokenCounter
	metrics   *telemetry.Metrics
	cfg       Config
}

// Option configures a Generator.
type Option func(*Generator)

// WithCache stores answers keyed by cache.Key(question).
func WithCache(c cache.Cache) Option {
	return func(g *Generator) { g.cache = c }
}

// WithTokenCounter replaces the chars/4 estimate.
func WithTokenCounter(c TokenCounter) Option {
	return func(g *Generator) { g.counter = c }
}

// WithMetrics attaches metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithConfig overrides defaults. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(g *Generator) {
		if cfg.TopK > 0 {
			g.cfg.TopK = cfg.TopK
		}
		if cfg.ContextTokens > 0 {
			g.cfg.ContextTokens = cfg.ContextTokens
		}
		if cfg.Temperature > 0 {
			g.cfg.Temperature = cfg.Temperature
		}
		if cfg.MaxTokens > 0 {
			g.cfg.MaxTokens = cfg.MaxTokens
		}
	}
}

// New creates a generator.
func New(r Retriever, c llm.Completer, opts ...Option) *Generator {
	g := &Generator{
		retriever: r,
		completer: c,
		cache:     cache.Noop{},
		counter:   charCounter{},
		cfg: Config{
			TopK:          DefaultTopK,
			ContextTokens: DefaultContextTokens,
			Temperature:   DefaultTemperature,
			MaxTokens:     DefaultMaxTokens,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Answer returns a cached answer when one is live, otherwise retrieves
// context and asks the model.
func (g *Generator) Answer(ctx context.Context, question string) (string, error) {
	key := cache.Key(question)
	if v, ok, err := g.cache.Get(ctx, key); err != nil {
		slog.Warn("answer_cache_get_failed", slog.String("error", err.Error()))
	} else {
		g.metrics.CacheLookup(ok)
		if ok {
			slog.Debug("answer_cache_hit", slog.String("key", key))
			return v, nil
		}
	}

	results, err := g.retriever.Retrieve(ctx, question, g.cfg.TopK, nil)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}
	if len(results) == 0 {
		slog.Warn("generate_no_context", slog.String("question", question))
		return NoContextAnswer, nil
	}

	contextText := g.fitContext(retrieval.FormatContext(results))

	start := time.Now()
	answer, err := g.completer.Complete(ctx, llm.Request{
		Prompt:       RAGPrompt(question, contextText),
		SystemPrompt: TradingAnalystSystem,
		Temperature:  g.cfg.Temperature,
		MaxTokens:    g.cfg.MaxTokens,
	})
	g.metrics.Completion(time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	if err := g.cache.Set(ctx, key, answer); err != nil {
		slog.Warn("answer_cache_set_failed", slog.String("error", err.Error()))
	}
	slog.Info("generate_answer",
		slog.Int("documents", len(results)),
		slog.Duration("duration", time.Since(start)))
	return answer, nil
}

// fitContext cuts text to about ContextTokens tokens, four bytes each.
func (g *Generator) fitContext(text string) string {
	if g.counter.Count(text) <= g.cfg.ContextTokens {
		return text
	}
	limit := g.cfg.ContextTokens * 4
	if limit >= len(text) {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	slog.Warn("generate_context_truncated",
		slog.Int("bytes", len(text)),
		slog.Int("kept", limit))
	return text[:limit] + truncatedSuffix
}
