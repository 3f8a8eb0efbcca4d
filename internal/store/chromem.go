package store

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/russo2100/trading-analytics-rag/internal/embed"
)

// chromemCollection is the collection holding every event.
const chromemCollection = "events"

// ChromemIndex is the chromem-go alternative to EmbeddingIndex. Metadata
// filtering is native: chromem applies the where clause before ranking.
type ChromemIndex struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embed.Embedder
}

var _ VectorIndex = (*ChromemIndex)(nil)

// OpenChromemIndex opens a persistent database in dir, or an in-memory one when dir is empty.
func OpenChromemIndex(dir string, embedder embed.Embedder) (*ChromemIndex, error) {
	var db *chromem.DB
	if dir == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db: %w", err)
		}
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(chromemCollection, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}

	return &ChromemIndex{db: db, collection: collection, embedder: embedder}, nil
}

// Upsert embeds in one batch and writes the documents; same ids are replaced.
func (c *ChromemIndex) Upsert(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	texts := make([]string, len(events))
	for i, ev := range events {
		texts[i] = ev.EmbeddingText
	}
	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed events: %w", err)
	}

	docs := make([]chromem.Document, len(events))
	for i, ev := range events {
		docs[i] = chromem.Document{
			ID:        ev.ID,
			Content:   ev.EmbeddingText,
			Metadata:  stringMetadata(ev.Metadata()),
			Embedding: vecs[i],
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection.AddDocuments(ctx, docs, 1)
}

// SearchText queries the collection. k is capped at the document count,
// which chromem requires.
func (c *ChromemIndex) SearchText(ctx context.Context, text string, k int, filter map[string]string) ([]VectorHit, error) {
	n := c.collection.Count()
	if n == 0 || k <= 0 {
		return []VectorHit{}, nil
	}
	k = min(k, n)

	var where map[string]string
	if len(filter) > 0 {
		where = filter
	}
	results, err := c.collection.Query(ctx, text, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query failed: %w", err)
	}

	hits := make([]VectorHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, VectorHit{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Metadata: anyMetadata(r.Metadata),
		})
	}
	sortHits(hits)
	return hits, nil
}

// Delete removes events by id.
func (c *ChromemIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection.Delete(ctx, nil, nil, ids...)
}

func (c *ChromemIndex) Count() int { return c.collection.Count() }

// Save is a no-op: the persistent DB writes through on every change.
func (c *ChromemIndex) Save() error { return nil }

func (c *ChromemIndex) Close() error { return nil }
