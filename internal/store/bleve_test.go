package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBleveIndex_IndexAndSearch(t *testing.T) {
	// Given: an in-memory bleve index with the sample events
	idx, err := OpenBleveIndex("")
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, sampleEvents()))

	// When: searching for storage terms
	hits, err := idx.SearchText(ctx, "storage injection", 5)

	// Then: the EIA event ranks first with its metadata restored
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "ev-2", hits[0].ID)
	assert.Contains(t, hits[0].Content, "EIA weekly")
	assert.Equal(t, "eia", hits[0].Metadata["source"])
	assert.Greater(t, hits[0].Rank, 0.0)
	assert.Equal(t, 3, idx.Count())
}

func TestBleveIndex_EmptyQueryAndDelete(t *testing.T) {
	idx, err := OpenBleveIndex("")
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, sampleEvents()))

	hits, err := idx.SearchText(ctx, "  ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, idx.Delete(ctx, []string{"ev-2"}))
	hits, err = idx.SearchText(ctx, "storage", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBleveIndex_AcceptsEscapedQuery(t *testing.T) {
	// Given: an indexed corpus
	idx, err := OpenBleveIndex("")
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, sampleEvents()))

	// When: the query arrives in escaped form, quotes doubled
	plain, err := idx.SearchText(ctx, `"storage" injection`, 5)
	require.NoError(t, err)
	escaped, err := idx.SearchText(ctx, EscapeQuery(`"storage" injection`), 5)
	require.NoError(t, err)

	// Then: it ranks exactly like the unescaped text
	require.NotEmpty(t, escaped)
	assert.Equal(t, "ev-2", escaped[0].ID)
	assert.Equal(t, len(plain), len(escaped))
}

func TestBleveIndex_PersistsOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fulltext.bleve")
	idx, err := OpenBleveIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Index(context.Background(), sampleEvents()))
	require.NoError(t, idx.Close())

	reopened, err := OpenBleveIndex(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 3, reopened.Count())
}

func TestBleveEventTokenizer(t *testing.T) {
	stream := (&bleveEventTokenizer{}).Tokenize([]byte("Stop-loss at 3.45, бот закрыл"))

	var terms []string
	for _, tok := range stream {
		terms = append(terms, string(tok.Term))
	}
	assert.Equal(t, []string{"Stop", "loss", "at", "45", "бот", "закрыл"}, terms)
}
