package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/russo2100/trading-analytics-rag/internal/store"
	"github.com/russo2100/trading-analytics-rag/internal/telemetry"
)

// VectorRetriever finds events by embedding similarity and hydrates them
// from the record store.
type VectorRetriever struct {
	index   store.VectorSearcher
	records store.RecordStore
	metrics *telemetry.Metrics
}

// NewVectorRetriever creates a vector retriever. metrics may be nil.
func NewVectorRetriever(index store.VectorSearcher, records store.RecordStore, metrics *telemetry.Metrics) *VectorRetriever {
	return &VectorRetriever{index: index, records: records, metrics: metrics}
}

// Search returns hits at or above q.MinScore, in index order. Index failures
// are logged and yield an empty list.
func (r *VectorRetriever) Search(ctx context.Context, q SearchQuery) ([]Result, error) {
	if q.Text == "" {
		return []Result{}, nil
	}
	start := time.Now()

	hits, err := r.index.SearchText(ctx, q.Text, q.TopK, q.Filters)
	if err != nil {
		slog.Warn("vector_search_failed",
			slog.String("query", q.Text),
			slog.String("error", err.Error()))
		r.metrics.Degraded("vector_index")
		return []Result{}, nil
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < q.MinScore {
			continue
		}
		results = append(results, r.hydrate(ctx, hit))
	}

	r.metrics.ObserveStage(telemetry.StageVector, time.Since(start), len(results))
	slog.Debug("vector_search",
		slog.String("query", q.Text),
		slog.Int("hits", len(hits)),
		slog.Int("results", len(results)))
	return results, nil
}

func (r *VectorRetriever) hydrate(ctx context.Context, hit store.VectorHit) Result {
	meta := make(map[string]any, len(hit.Metadata))
	for k, v := range hit.Metadata {
		meta[k] = v
	}
	content := ""

	if r.records != nil {
		ev, err := r.records.GetByID(ctx, hit.ID)
		switch {
		case err != nil:
			slog.Warn("vector_hydrate_failed",
				slog.String("event_id", hit.ID),
				slog.String("error", err.Error()))
		case ev != nil:
			for k, v := range ev.Metadata() {
				meta[k] = v
			}
			content = ev.EmbeddingText
		}
	}
	if content == "" {
		content = fmt.Sprintf("Event %s", hit.ID)
	}

	return Result{
		ID:       hit.ID,
		Content:  content,
		Score:    hit.Score,
		Metadata: meta,
		Source:   StrategyVector,
	}
}
