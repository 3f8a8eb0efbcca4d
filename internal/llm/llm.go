// Package llm wraps the chat-completion services the agent and the direct
// RAG generator talk to.
package llm

import (
	"context"
	"time"
)

// DefaultTimeout bounds one completion call.
const DefaultTimeout = 60 * time.Second

// Request is a single-turn completion request.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int

	// Stop sequences end generation early, e.g. before a hallucinated observation.
	Stop []string
}

// Completer produces text for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
