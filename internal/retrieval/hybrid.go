package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/russo2100/trading-analytics-rag/internal/telemetry"
)

// DefaultRRFConstant is the RRF smoothing parameter.
const DefaultRRFConstant = 60

// HybridRetriever fuses vector and keyword results with Reciprocal Rank Fusion.
type HybridRetriever struct {
	vector  Retriever
	keyword Retriever
	k       int
	metrics *telemetry.Metrics
}

// HybridOption configures a HybridRetriever.
type HybridOption func(*HybridRetriever)

// WithRRFConstant overrides k. Values <= 0 keep the default.
func WithRRFConstant(k int) HybridOption {
	return func(h *HybridRetriever) {
		if k > 0 {
			h.k = k
		}
	}
}

// WithHybridMetrics attaches metrics.
func WithHybridMetrics(m *telemetry.Metrics) HybridOption {
	return func(h *HybridRetriever) {
		h.metrics = m
	}
}

// NewHybridRetriever creates a hybrid retriever over the two sub-retrievers.
func NewHybridRetriever(vector, keyword Retriever, opts ...HybridOption) *HybridRetriever {
	h := &HybridRetriever{vector: vector, keyword: keyword, k: DefaultRRFConstant}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// K returns the RRF constant in use.
func (h *HybridRetriever) K() int {
	return h.k
}

// Search runs both retrievers and fuses their rankings. Each list
// contributes 1/(k+rank+1) per document, ranks counted from 0.
func (h *HybridRetriever) Search(ctx context.Context, q SearchQuery) ([]Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	var vec, kw []Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vec, err = h.vector.Search(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		kw, err = h.keyword.Search(gctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := FuseRRF(h.k, q.TopK, vec, kw)

	h.metrics.ObserveStage(telemetry.StageHybrid, time.Since(start), len(fused))
	slog.Debug("hybrid_search",
		slog.String("query", q.Text),
		slog.Int("vector", len(vec)),
		slog.Int("keyword", len(kw)),
		slog.Int("fused", len(fused)))
	return fused, nil
}

// FuseRRF merges ranked lists. The first list to mention a document supplies
// its content and metadata. Ties keep first-seen order. The result is
// truncated to topK and tagged hybrid.
func FuseRRF(k, topK int, lists ...[]Result) []Result {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	index := make(map[string]int)
	var fused []Result
	for _, list := range lists {
		for rank, r := range list {
			contribution := 1.0 / float64(k+rank+1)
			if i, ok := index[r.ID]; ok {
				fused[i].Score += contribution
				continue
			}
			index[r.ID] = len(fused)
			r.Score = contribution
			r.Source = StrategyHybrid
			fused = append(fused, r)
		}
	}
	if len(fused) == 0 {
		return []Result{}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	return fused
}
