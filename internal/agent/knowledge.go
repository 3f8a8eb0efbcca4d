package agent

import (
	"context"
	"strings"

	"github.com/russo2100/trading-analytics-rag/internal/retrieval"
)

// KnowledgeTopK is how many documents the knowledge base tool returns.
const KnowledgeTopK = 5

// NoInformationMessage is the observation when retrieval finds nothing.
const NoInformationMessage = "No relevant information found."

// Retriever is satisfied by *retrieval.Pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, text string, topK int, filters map[string]string) ([]retrieval.Result, error)
}

// KnowledgeBase searches recorded trading events.
type KnowledgeBase struct {
	retriever Retriever
}

var _ Tool = (*KnowledgeBase)(nil)

// NewKnowledgeBase creates the tool.
func NewKnowledgeBase(r Retriever) *KnowledgeBase {
	return &KnowledgeBase{retriever: r}
}

func (k *KnowledgeBase) Name() string { return "KnowledgeBase" }

func (k *KnowledgeBase) Description() string {
	return "Searches the trading bot's recorded events (decisions, logs, market reports). " +
		"Input: a natural-language search query."
}

func (k *KnowledgeBase) Run(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	results, err := k.retriever.Retrieve(ctx, query, KnowledgeTopK, nil)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return NoInformationMessage, nil
	}
	return retrieval.FormatContext(results), nil
}
