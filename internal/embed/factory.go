package embed

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/russo2100/trading-analytics-rag/internal/config"
)

// New builds the configured embedder wrapped in an LRU cache.
func New(cfg config.EmbeddingsConfig) (Embedder, error) {
	var inner Embedder

	switch strings.ToLower(cfg.Provider) {
	case "", "static":
		inner = NewStaticEmbedder(cfg.Dimensions)
	case "ollama":
		// dimensions are learned from the model, not the static default
		inner = NewOllamaEmbedder(OllamaConfig{
			Host:  cfg.OllamaHost,
			Model: cfg.Model,
		})
	case "openai":
		oe, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		inner = oe
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}

	slog.Debug("embedder_created",
		slog.String("provider", cfg.Provider),
		slog.String("model", inner.ModelName()),
		slog.Int("cache_size", cfg.CacheSize))

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
