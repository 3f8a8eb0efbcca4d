package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWIndex_SearchOrdersBySimilarity(t *testing.T) {
	h := NewHNSWIndex(HNSWConfig{})
	require.NoError(t, h.Add(
		[]string{"x", "y", "xy"},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {1, 1, 0}},
	))

	hits, err := h.Search([]float32{1, 0.1, 0}, 3)

	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "x", hits[0].ID)
	assert.Equal(t, "xy", hits[1].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 0.01)
	assert.Equal(t, 3, h.Dimensions(), "dimensions adopted from first vector")
}

func TestHNSWIndex_DimensionMismatch(t *testing.T) {
	h := NewHNSWIndex(HNSWConfig{Dimensions: 2})

	err := h.Add([]string{"a"}, [][]float32{{1, 2, 3}})

	var dm ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
}

func TestHNSWIndex_ReplaceAndDeleteAreLazy(t *testing.T) {
	// Given: two vectors, one of which is overwritten and then deleted
	h := NewHNSWIndex(HNSWConfig{})
	require.NoError(t, h.Add([]string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, h.Add([]string{"a"}, [][]float32{{0.9, 0.1}}))
	h.Delete([]string{"b"})

	// When: searching
	hits, err := h.Search([]float32{0, 1}, 5)

	// Then: only the live "a" is returned and orphans are counted
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, 1, h.Count())
	assert.Equal(t, 2, h.Orphans())
}

func TestHNSWIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	h := NewHNSWIndex(HNSWConfig{})
	require.NoError(t, h.Add([]string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, h.Save(path))

	loaded := NewHNSWIndex(HNSWConfig{})
	require.NoError(t, loaded.Load(path))

	hits, err := loaded.Search([]float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
	assert.Equal(t, 2, loaded.Count())
}
