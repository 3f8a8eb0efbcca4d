package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/russo2100/trading-analytics-rag/internal/agent"
	"github.com/russo2100/trading-analytics-rag/internal/cache"
	"github.com/russo2100/trading-analytics-rag/internal/config"
	"github.com/russo2100/trading-analytics-rag/internal/embed"
	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
	"github.com/russo2100/trading-analytics-rag/internal/generate"
	"github.com/russo2100/trading-analytics-rag/internal/llm"
	"github.com/russo2100/trading-analytics-rag/internal/retrieval"
	"github.com/russo2100/trading-analytics-rag/internal/store"
	"github.com/russo2100/trading-analytics-rag/internal/telemetry"
)

// lockFileName sits next to the vector index.
const lockFileName = "index.lock"

// loadConfig loads, validates and anchors the configuration for dir.
func loadConfig(dir string) (*config.Config, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, ragerrors.ConfigError(err.Error(), err).
			WithSuggestion("fix " + filepath.Join(abs, config.ProjectFileName) + " or run 'tradingrag config show'")
	}
	return cfg.Resolve(abs), nil
}

// app holds the components a command needs. Fields are filled lazily by the
// open* methods so commands only pay for what they use.
type app struct {
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *telemetry.Metrics

	records  *store.SQLiteStore
	embedder embed.Embedder

	mu       sync.RWMutex
	vector   store.VectorIndex
	text     store.TextIndex // nil when full-text search is served by records
	scorer   retrieval.Scorer
	pipeline *retrieval.Pipeline

	completer   llm.Completer
	answerCache cache.Cache
}

// openApp loads config and opens the record store.
func openApp(dir string) (*app, error) {
	cfg, err := loadConfig(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.Database), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	records, err := store.OpenSQLiteStore(cfg.Paths.Database)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		registry: registry,
		metrics:  telemetry.New(registry),
		records:  records,
	}, nil
}

// openIndexes opens the embedder and the configured vector and full-text
// backends, replacing any already open.
func (a *app) openIndexes() error {
	if a.embedder == nil {
		embedder, err := embed.New(a.cfg.Embeddings)
		if err != nil {
			return err
		}
		a.embedder = embedder
	}

	vector, err := store.OpenVectorIndex(a.cfg.Retrieval.VectorBackend, a.cfg.Paths, a.embedder)
	if err != nil {
		return ragerrors.New(ragerrors.ErrCodeCorruptIndex, "failed to open vector index", err).
			WithSuggestion("rebuild it with 'tradingrag index'")
	}
	textIndex, err := store.OpenTextIndex(a.cfg.Retrieval.FullTextBackend, a.cfg.Paths, a.records)
	if err != nil {
		_ = vector.Close()
		return err
	}
	var text store.TextIndex
	if textIndex != store.TextIndex(a.records) {
		text = textIndex
	}

	a.mu.Lock()
	oldVector, oldText := a.vector, a.text
	a.vector, a.text = vector, text
	a.pipeline = nil
	a.mu.Unlock()

	if oldVector != nil {
		_ = oldVector.Close()
	}
	if oldText != nil {
		_ = oldText.Close()
	}
	return nil
}

// retriever builds (once per index generation) the hybrid + rerank pipeline.
func (a *app) retriever() (*retrieval.Pipeline, error) {
	a.mu.RLock()
	p := a.pipeline
	a.mu.RUnlock()
	if p != nil {
		return p, nil
	}

	if a.vector == nil {
		if err := a.openIndexes(); err != nil {
			return nil, err
		}
	}
	if a.scorer == nil {
		scorer, err := retrieval.NewScorer(a.cfg.Rerank)
		if err != nil {
			return nil, err
		}
		a.scorer = scorer
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var fullText store.FullTextSearcher = a.records
	if a.text != nil {
		fullText = a.text
	}
	hybrid := retrieval.NewHybridRetriever(
		retrieval.NewVectorRetriever(a.vector, a.records, a.metrics),
		retrieval.NewKeywordRetriever(fullText, a.metrics),
		retrieval.WithRRFConstant(a.cfg.Retrieval.RRFConstant),
		retrieval.WithHybridMetrics(a.metrics),
	)
	var reranker *retrieval.Reranker
	if a.scorer != nil {
		reranker = retrieval.NewReranker(a.scorer, a.metrics)
	}
	a.pipeline = retrieval.NewPipeline(hybrid, reranker,
		retrieval.WithOversample(a.cfg.Retrieval.OversampleFactor),
		retrieval.WithPipelineMetrics(a.metrics),
	)
	slog.Debug("retrieval_pipeline_built",
		slog.String("vector_backend", a.cfg.Retrieval.VectorBackend),
		slog.String("fulltext_backend", a.cfg.Retrieval.FullTextBackend),
		slog.String("rerank_provider", a.cfg.Rerank.Provider))
	return a.pipeline, nil
}

// llm returns the configured completer.
func (a *app) llm() (llm.Completer, error) {
	if a.completer != nil {
		return a.completer, nil
	}
	c, err := llm.New(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	a.completer = c
	return c, nil
}

// newAgent builds a ReAct agent over the current pipeline.
func (a *app) newAgent() (*agent.Agent, error) {
	pipeline, err := a.retriever()
	if err != nil {
		return nil, err
	}
	completer, err := a.llm()
	if err != nil {
		return nil, err
	}
	tools := agent.NewRegistry(
		agent.NewKnowledgeBase(pipeline),
		agent.NewSessionQuery(a.records),
		agent.Calculator{},
	)
	return agent.New(completer, tools,
		agent.WithConfig(agent.Config{
			MaxSteps:      a.cfg.Agent.MaxSteps,
			MaxTokens:     a.cfg.Agent.MaxTokens,
			HistoryWindow: a.cfg.Agent.HistoryWindow,
			TokenBudget:   a.cfg.Agent.TokenBudget,
		}),
		agent.WithMetrics(a.metrics),
	)
}

// newGenerator builds the direct RAG answerer with the answer cache.
func (a *app) newGenerator() (*generate.Generator, error) {
	pipeline, err := a.retriever()
	if err != nil {
		return nil, err
	}
	completer, err := a.llm()
	if err != nil {
		return nil, err
	}
	if a.answerCache == nil {
		c, err := cache.New(a.cfg.Cache)
		if err != nil {
			slog.Warn("answer cache unavailable, continuing without it", slog.String("error", err.Error()))
			c = cache.Noop{}
		}
		a.answerCache = c
	}
	return generate.New(pipeline, completer,
		generate.WithCache(a.answerCache),
		generate.WithTokenCounter(agent.NewTiktokenCounter()),
		generate.WithMetrics(a.metrics),
		generate.WithConfig(generate.Config{
			TopK:        a.cfg.Retrieval.DefaultTopK,
			Temperature: a.cfg.LLM.Temperature,
			MaxTokens:   a.cfg.LLM.MaxTokens,
		}),
	), nil
}

// newLock returns the index build lock.
func (a *app) newLock() (*store.FileLock, error) {
	return store.NewFileLock(filepath.Join(filepath.Dir(a.cfg.Paths.VectorIndex), lockFileName))
}

// indexDir is the directory the index watcher observes.
func (a *app) indexDir() string {
	return filepath.Dir(a.cfg.Paths.VectorIndex)
}

// Close releases everything the app opened.
func (a *app) Close() error {
	var errs []error
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.vector != nil {
		errs = append(errs, a.vector.Close())
	}
	if a.text != nil {
		errs = append(errs, a.text.Close())
	}
	if c, ok := a.scorer.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.answerCache != nil {
		errs = append(errs, a.answerCache.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	errs = append(errs, a.records.Close())
	return errors.Join(errs...)
}
