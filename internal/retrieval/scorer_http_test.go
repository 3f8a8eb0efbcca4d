package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/russo2100/trading-analytics-rag/internal/config"
	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
)

func configRerank(provider, endpoint string) config.RerankConfig {
	return config.RerankConfig{Provider: provider, Endpoint: endpoint}
}

func TestHTTPScorer_MapsResultsByIndex(t *testing.T) {
	// Given: a service that returns results sorted by score, not input order
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rerank", r.URL.Path)
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "why stop", req.Query)
		assert.Equal(t, "reranker-small", req.Model)
		assert.Equal(t, 3, req.TopK)

		_, _ = w.Write([]byte(`{"results":[
			{"index":2,"score":0.9,"document":"c"},
			{"index":0,"score":0.5,"document":"a"},
			{"index":1,"score":0.1,"document":"b"}],
			"model":"reranker-small","count":3,"processing_time_ms":4.2}`))
	}))
	defer srv.Close()

	s := NewHTTPScorer(HTTPScorerConfig{Endpoint: srv.URL})

	// When
	scores, err := s.Score(context.Background(), "why stop", []string{"a", "b", "c"})

	// Then
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.1, 0.9}, scores)
}

func TestHTTPScorer_EmptyMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	scores, err := NewHTTPScorer(HTTPScorerConfig{Endpoint: srv.URL}).Score(context.Background(), "q", nil)

	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.Equal(t, int32(0), calls.Load())
}

func TestHTTPScorer_ShortResponseIsMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":0,"score":0.5}]}`))
	}))
	defer srv.Close()

	_, err := NewHTTPScorer(HTTPScorerConfig{Endpoint: srv.URL}).Score(context.Background(), "q", []string{"a", "b"})

	assert.ErrorIs(t, err, ErrScoreCountMismatch)
}

func TestHTTPScorer_CircuitOpensAfterFailures(t *testing.T) {
	// Given: a service that always fails
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	s := NewHTTPScorer(HTTPScorerConfig{Endpoint: srv.URL})

	// When: five attempts
	var last error
	for i := 0; i < 5; i++ {
		_, last = s.Score(context.Background(), "q", []string{"a"})
	}

	// Then: the breaker stopped traffic after three failures
	assert.Equal(t, int32(3), calls.Load())
	assert.ErrorIs(t, last, ragerrors.ErrCircuitOpen)
}

func TestHTTPScorer_Available(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.True(t, NewHTTPScorer(HTTPScorerConfig{Endpoint: srv.URL}).Available(context.Background()))

	srv.Close()
	assert.False(t, NewHTTPScorer(HTTPScorerConfig{Endpoint: srv.URL}).Available(context.Background()))
}

func TestPipeline_HTTPScorerFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewPipeline(&staticRetriever{results: results("A", "B")}, NewReranker(NewHTTPScorer(HTTPScorerConfig{Endpoint: srv.URL}), nil))

	got, err := p.Retrieve(context.Background(), "q", 2, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(got))
}
