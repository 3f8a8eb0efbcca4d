package llm

import (
	"fmt"

	"github.com/russo2100/trading-analytics-rag/internal/config"
)

const (
	attributionReferer = "https://github.com/russo2100/trading-analytics-rag"
	attributionTitle   = "Trading Analytics RAG"
)

// New builds the configured completer.
func New(cfg config.LLMConfig) (Completer, error) {
	timeout := config.Duration(cfg.Timeout, DefaultTimeout)
	switch cfg.Provider {
	case "", "openrouter":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
			Referer: attributionReferer,
			Title:   attributionTitle,
		})
	case "ollama":
		return NewOllamaClient(OllamaConfig{
			Host:    cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
