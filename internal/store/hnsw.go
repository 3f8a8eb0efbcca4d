package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWConfig tunes the graph.
type HNSWConfig struct {
	// Dimensions of stored vectors; 0 adopts the first vector's length.
	Dimensions int
	M          int
	EfSearch   int
}

// HNSWIndex is a cosine nearest-neighbor graph keyed by event id.
// Deletes and overwrites are lazy: the old node stays in the graph but
// loses its id mapping, so it never surfaces in results.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config HNSWConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// hnswMetadata is the gob sidecar holding id mappings.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  HNSWConfig
}

type hnswHit struct {
	ID    string
	Score float64
}

// NewHNSWIndex creates an empty graph.
func NewHNSWIndex(cfg HNSWConfig) *HNSWIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return &HNSWIndex{
		graph:  newGraph(cfg),
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

func newGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// Add inserts or replaces vectors.
func (h *HNSWIndex) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrStoreClosed
	}

	if h.config.Dimensions == 0 {
		h.config.Dimensions = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != h.config.Dimensions {
			return ErrDimensionMismatch{Expected: h.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		// coder/hnsw misbehaves when the last node is deleted, so orphan instead
		if existing, ok := h.idMap[id]; ok {
			delete(h.keyMap, existing)
		}

		key := h.nextKey
		h.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		h.graph.Add(hnsw.MakeNode(key, vec))
		h.idMap[id] = key
		h.keyMap[key] = id
	}
	return nil
}

// Search returns up to k live neighbors, best first. Score is 1 - d/2 in [0, 1].
func (h *HNSWIndex) Search(query []float32, k int) ([]hnswHit, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrStoreClosed
	}
	if h.graph.Len() == 0 || k <= 0 {
		return []hnswHit{}, nil
	}
	if len(query) != h.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: h.config.Dimensions, Got: len(query)}
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)

	// orphans occupy graph slots, so ask for more than k when there are any
	want := k + (h.graph.Len() - len(h.idMap))
	nodes := h.graph.Search(q, want)

	hits := make([]hnswHit, 0, min(k, len(nodes)))
	for _, node := range nodes {
		id, ok := h.keyMap[node.Key]
		if !ok {
			continue
		}
		d := h.graph.Distance(q, node.Value)
		hits = append(hits, hnswHit{ID: id, Score: float64(1.0 - d/2.0)})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Delete orphans ids.
func (h *HNSWIndex) Delete(ids []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		if key, ok := h.idMap[id]; ok {
			delete(h.keyMap, key)
			delete(h.idMap, id)
		}
	}
}

// Count returns the number of live vectors.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idMap)
}

// Orphans returns graph nodes no longer mapped to an id.
func (h *HNSWIndex) Orphans() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}
	return h.graph.Len() - len(h.idMap)
}

// Dimensions returns the vector dimension, 0 while empty.
func (h *HNSWIndex) Dimensions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config.Dimensions
}

// Save writes the graph to path and id mappings to path.meta, each via temp file + rename.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrStoreClosed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := h.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	meta := hnswMetadata{IDMap: h.idMap, NextKey: h.nextKey, Config: h.config}
	if err := writeGob(path+".meta", meta); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

// Load replaces the in-memory graph with the one saved at path.
func (h *HNSWIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrStoreClosed
	}

	var meta hnswMetadata
	if err := readGob(path+".meta", &meta); err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	graph := newGraph(meta.Config)
	// Import requires an io.ByteReader
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	h.graph = graph
	h.config = meta.Config
	h.idMap = meta.IDMap
	h.nextKey = meta.NextKey
	h.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range h.idMap {
		h.keyMap[key] = id
	}
	return nil
}

// Close releases the graph. Idempotent.
func (h *HNSWIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func writeGob(path string, v any) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(v); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		_ = os.Remove(tmp)
		return fmt.Errorf("encode: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close: %w", err)
	}
	return os.Rename(tmp, path)
}

func readGob(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	return gob.NewDecoder(file).Decode(v)
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
