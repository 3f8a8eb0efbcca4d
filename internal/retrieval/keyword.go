package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/russo2100/trading-analytics-rag/internal/store"
	"github.com/russo2100/trading-analytics-rag/internal/telemetry"
)

// KeywordRetriever runs full-text search over event text.
type KeywordRetriever struct {
	index   store.FullTextSearcher
	metrics *telemetry.Metrics
}

// NewKeywordRetriever creates a keyword retriever. metrics may be nil.
func NewKeywordRetriever(index store.FullTextSearcher, metrics *telemetry.Metrics) *KeywordRetriever {
	return &KeywordRetriever{index: index, metrics: metrics}
}

// Search never returns an error: engine failures, including rejected query
// syntax, produce an empty list. Hits whose metadata fails q.Filters are
// dropped, so filtered searches may return fewer than TopK results.
func (r *KeywordRetriever) Search(ctx context.Context, q SearchQuery) ([]Result, error) {
	if q.Text == "" {
		return []Result{}, nil
	}
	start := time.Now()

	hits, err := r.index.SearchText(ctx, store.EscapeQuery(q.Text), q.TopK)
	if err != nil {
		slog.Warn("keyword_search_failed",
			slog.String("query", q.Text),
			slog.String("error", err.Error()))
		r.metrics.Degraded("text_index")
		return []Result{}, nil
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		meta := hit.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		if !store.MatchesFilter(meta, q.Filters) {
			continue
		}
		results = append(results, Result{
			ID:       hit.ID,
			Content:  hit.Content,
			Score:    hit.Rank,
			Metadata: meta,
			Source:   StrategyKeyword,
		})
	}

	r.metrics.ObserveStage(telemetry.StageKeyword, time.Since(start), len(results))
	return results, nil
}
