package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/russo2100/trading-analytics-rag/internal/embed"
)

// filterOverfetch widens the graph search when a metadata filter will
// discard some neighbors.
const filterOverfetch = 4

// EmbeddingIndex embeds event text and serves it from an HNSW graph.
// Event metadata lives in a sidecar next to the graph for filtering.
type EmbeddingIndex struct {
	mu       sync.RWMutex
	embedder embed.Embedder
	graph    *HNSWIndex
	meta     map[string]map[string]string
	path     string
}

var _ VectorIndex = (*EmbeddingIndex)(nil)

// OpenEmbeddingIndex loads the index saved at path, or starts empty when
// nothing is there yet. An empty path keeps the index in memory only.
func OpenEmbeddingIndex(path string, embedder embed.Embedder) (*EmbeddingIndex, error) {
	idx := &EmbeddingIndex{
		embedder: embedder,
		graph:    NewHNSWIndex(HNSWConfig{Dimensions: embedder.Dimensions()}),
		meta:     make(map[string]map[string]string),
		path:     path,
	}
	if path == "" {
		return idx, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return idx, nil
	}

	if err := idx.graph.Load(path); err != nil {
		return nil, fmt.Errorf("failed to load vector index: %w", err)
	}
	if err := readGob(path+".docs", &idx.meta); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load vector metadata: %w", err)
	}

	if want := embedder.Dimensions(); want > 0 && idx.graph.Dimensions() > 0 && want != idx.graph.Dimensions() {
		return nil, ErrDimensionMismatch{Expected: idx.graph.Dimensions(), Got: want}
	}

	slog.Debug("vector_index_loaded",
		slog.String("path", path),
		slog.Int("vectors", idx.graph.Count()))
	return idx, nil
}

// Upsert embeds events in one batch and inserts them.
func (e *EmbeddingIndex) Upsert(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	texts := make([]string, len(events))
	ids := make([]string, len(events))
	for i, ev := range events {
		texts[i] = ev.EmbeddingText
		ids[i] = ev.ID
	}

	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed events: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.graph.Add(ids, vecs); err != nil {
		return err
	}
	for _, ev := range events {
		e.meta[ev.ID] = stringMetadata(ev.Metadata())
	}
	return nil
}

// SearchText embeds text and returns the k nearest events matching filter.
func (e *EmbeddingIndex) SearchText(ctx context.Context, text string, k int, filter map[string]string) ([]VectorHit, error) {
	if k <= 0 {
		return []VectorHit{}, nil
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	want := k
	if len(filter) > 0 {
		want = k * filterOverfetch
	}
	raw, err := e.graph.Search(vec, want)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	hits := make([]VectorHit, 0, k)
	for _, h := range raw {
		meta := anyMetadata(e.meta[h.ID])
		if !MatchesFilter(meta, filter) {
			continue
		}
		hits = append(hits, VectorHit{ID: h.ID, Score: h.Score, Metadata: meta})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Delete removes events from the index.
func (e *EmbeddingIndex) Delete(_ context.Context, ids []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph.Delete(ids)
	for _, id := range ids {
		delete(e.meta, id)
	}
	return nil
}

func (e *EmbeddingIndex) Count() int { return e.graph.Count() }

// Save persists graph and metadata. No-op for in-memory indexes.
func (e *EmbeddingIndex) Save() error {
	if e.path == "" {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.graph.Save(e.path); err != nil {
		return err
	}
	if err := writeGob(e.path+".docs", e.meta); err != nil {
		return fmt.Errorf("failed to save vector metadata: %w", err)
	}
	slog.Info("vector_index_saved",
		slog.String("path", e.path),
		slog.Int("vectors", e.graph.Count()),
		slog.Int("orphans", e.graph.Orphans()))
	return nil
}

// Close closes the graph. The embedder is owned by the caller.
func (e *EmbeddingIndex) Close() error {
	return e.graph.Close()
}
