package retrieval

import (
	"context"

	"github.com/russo2100/trading-analytics-rag/internal/store"
)

// LexicalScorer scores documents by the fraction of query terms they contain.
// It needs no model and is used when no reranking service is configured.
type LexicalScorer struct{}

var _ Scorer = LexicalScorer{}

// Score returns values in [0, 1]. A query with no terms scores every document 0.
func (LexicalScorer) Score(_ context.Context, query string, docs []string) ([]float64, error) {
	terms := dedupe(store.Terms(query))
	scores := make([]float64, len(docs))
	if len(terms) == 0 {
		return scores, nil
	}

	for i, doc := range docs {
		present := make(map[string]struct{})
		for _, tok := range store.TokenizeText(doc) {
			present[tok] = struct{}{}
		}
		matched := 0
		for _, t := range terms {
			if _, ok := present[t]; ok {
				matched++
			}
		}
		scores[i] = float64(matched) / float64(len(terms))
	}
	return scores, nil
}

func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
