package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/russo2100/trading-analytics-rag/internal/telemetry"
)

// Scorer assigns a relevance score to each document for a query. It must
// return exactly one score per document, in input order.
type Scorer interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, query string, docs []string) ([]float64, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	return f(ctx, query, docs)
}

// Reranker rescores candidates with a Scorer.
type Reranker struct {
	scorer  Scorer
	metrics *telemetry.Metrics
}

// NewReranker creates a reranker. metrics may be nil.
func NewReranker(scorer Scorer, metrics *telemetry.Metrics) *Reranker {
	return &Reranker{scorer: scorer, metrics: metrics}
}

// Rerank scores every candidate in one batch, overwrites Score and sorts
// descending. Equal scores keep input order. Nothing is dropped.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Result) ([]Result, error) {
	if len(candidates) == 0 {
		return []Result{}, nil
	}
	start := time.Now()

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Content
	}

	scores, err := r.scorer.Score(ctx, query, docs)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("%w: %d scores for %d candidates",
			ErrScoreCountMismatch, len(scores), len(candidates))
	}

	out := make([]Result, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].Score = scores[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	r.metrics.ObserveStage(telemetry.StageRerank, time.Since(start), len(out))
	return out, nil
}
