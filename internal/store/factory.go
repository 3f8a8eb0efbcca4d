package store

import (
	"fmt"
	"log/slog"

	"github.com/russo2100/trading-analytics-rag/internal/config"
	"github.com/russo2100/trading-analytics-rag/internal/embed"
)

// Backend names accepted in retrieval.vector_backend and retrieval.fulltext_backend.
const (
	BackendHNSW    = "hnsw"
	BackendChromem = "chromem"
	BackendSQLite  = "sqlite"
	BackendBleve   = "bleve"
)

// OpenVectorIndex opens the configured vector backend.
func OpenVectorIndex(backend string, paths config.PathsConfig, embedder embed.Embedder) (VectorIndex, error) {
	slog.Debug("vector_backend_selected", slog.String("backend", backend))
	switch backend {
	case "", BackendHNSW:
		return OpenEmbeddingIndex(paths.VectorIndex, embedder)
	case BackendChromem:
		return OpenChromemIndex(paths.ChromemDir, embedder)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", backend)
	}
}

// OpenTextIndex returns the configured full-text backend. The SQLite backend
// is the record store itself; callers must not close it twice.
func OpenTextIndex(backend string, paths config.PathsConfig, records *SQLiteStore) (TextIndex, error) {
	slog.Debug("fulltext_backend_selected", slog.String("backend", backend))
	switch backend {
	case "", BackendSQLite:
		return records, nil
	case BackendBleve:
		return OpenBleveIndex(paths.BleveIndex)
	default:
		return nil, fmt.Errorf("unknown full-text backend %q", backend)
	}
}
