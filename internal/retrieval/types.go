// Package retrieval implements the hybrid retrieval pipeline: vector and
// keyword retrievers, Reciprocal Rank Fusion, reranking and context
// formatting for the language model.
package retrieval

import (
	"context"
	"errors"
	"fmt"
)

// Strategy identifies which retriever produced a result.
type Strategy string

const (
	StrategyVector  Strategy = "vector"
	StrategyKeyword Strategy = "keyword"
	StrategyHybrid  Strategy = "hybrid"
)

// Sentinel errors for input validation.
var (
	ErrEmptyQuery         = errors.New("query text is empty")
	ErrInvalidTopK        = errors.New("top_k must be positive")
	ErrScoreCountMismatch = errors.New("scorer returned a different number of scores than candidates")
)

// SearchQuery is a single retrieval request.
type SearchQuery struct {
	Text     string
	TopK     int
	Filters  map[string]string
	MinScore float64
	Strategy Strategy
}

// Validate rejects queries that can never be served. Empty text is valid and
// yields zero results.
func (q SearchQuery) Validate() error {
	if q.TopK <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTopK, q.TopK)
	}
	return nil
}

// Result is one retrieved event.
type Result struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
	Source   Strategy
}

// Retriever is implemented by the vector, keyword and hybrid retrievers.
type Retriever interface {
	Search(ctx context.Context, q SearchQuery) ([]Result, error)
}
