// Package index builds the search indexes from the record store.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
	"github.com/russo2100/trading-analytics-rag/internal/store"
	"github.com/russo2100/trading-analytics-rag/internal/ui"
)

// DefaultBatchSize is the number of events embedded per Upsert call.
const DefaultBatchSize = 64

// EventSource lists every stored event. *store.SQLiteStore satisfies it.
type EventSource interface {
	Events(ctx context.Context) ([]*store.Event, error)
}

// Renderer receives progress. *ui.PlainRenderer satisfies it.
type Renderer interface {
	UpdateProgress(event ui.ProgressEvent)
	Warn(err error)
}

// RunnerDependencies contains the injected dependencies for Runner.
type RunnerDependencies struct {
	// Renderer for progress display (required).
	Renderer Renderer

	// Records is the source of truth (required).
	Records EventSource

	// Vector receives embeddings (required).
	Vector store.VectorIndex

	// Text is an external full-text index to rebuild. Nil when full-text
	// search is served by the record store itself.
	Text store.TextIndex

	// Lock serializes builds across processes. Optional.
	Lock *store.FileLock
}

// RunnerConfig configures an indexing run.
type RunnerConfig struct {
	BatchSize int
}

// RunnerResult contains the outcome of an indexing operation.
type RunnerResult struct {
	Events   int
	Batches  int
	Vectors  int
	Duration time.Duration
}

// Runner embeds every stored event into the vector backend.
type Runner struct {
	renderer Renderer
	records  EventSource
	vector   store.VectorIndex
	text     store.TextIndex
	lock     *store.FileLock
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if deps.Records == nil {
		return nil, errors.New("record store is required")
	}
	if deps.Vector == nil {
		return nil, errors.New("vector index is required")
	}
	return &Runner{
		renderer: deps.Renderer,
		records:  deps.Records,
		vector:   deps.Vector,
		text:     deps.Text,
		lock:     deps.Lock,
	}, nil
}

// Run rebuilds the indexes under the file lock and saves the vector index.
// A held lock fails fast with ErrCodeIndexLocked.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	start := time.Now()
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	if r.lock != nil {
		if err := r.lock.TryLock(); err != nil {
			return nil, err
		}
		defer func() { _ = r.lock.Unlock() }()
	}

	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageLoading, Message: "reading events"})
	events, err := r.records.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	result := &RunnerResult{Events: len(events)}
	if len(events) == 0 {
		r.renderer.Warn(errors.New("no events in the record store; run tradingrag import first"))
		result.Duration = time.Since(start)
		return result, nil
	}

	for i := 0; i < len(events); i += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(i+batchSize, len(events))
		batch := events[i:end]

		if err := r.vector.Upsert(ctx, batch); err != nil {
			return nil, ragerrors.New(ragerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("failed to embed events %d-%d", i+1, end), err)
		}
		if r.text != nil {
			if err := r.text.Index(ctx, batch); err != nil {
				return nil, fmt.Errorf("failed to index events %d-%d: %w", i+1, end, err)
			}
		}
		result.Batches++
		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageEmbedding,
			Current: end,
			Total:   len(events),
			Message: "embedding events",
		})
	}

	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageSaving, Message: "saving vector index"})
	if err := r.vector.Save(); err != nil {
		return nil, fmt.Errorf("failed to save vector index: %w", err)
	}

	result.Vectors = r.vector.Count()
	result.Duration = time.Since(start)
	slog.Info("index_build_complete",
		slog.Int("events", result.Events),
		slog.Int("vectors", result.Vectors),
		slog.Int("batches", result.Batches),
		slog.Duration("duration", result.Duration))
	return result, nil
}
