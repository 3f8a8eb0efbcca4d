package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// EventTokenizerName is the registered bleve tokenizer for event text.
	EventTokenizerName = "event_tokenizer"

	// EventStopFilterName is the registered bleve stop word filter.
	EventStopFilterName = "event_stop"

	// EventAnalyzerName is the analyzer applied to event content.
	EventAnalyzerName = "event_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(EventTokenizerName, eventTokenizerConstructor)
	_ = registry.RegisterTokenFilter(EventStopFilterName, eventStopFilterConstructor)
}

// BleveIndex is the bleve-backed alternative to the SQLite FTS5 index.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ TextIndex = (*BleveIndex)(nil)

// bleveEvent is the indexed document. Meta is stored for hydration, not searched.
type bleveEvent struct {
	Content string `json:"content"`
	Source  string `json:"source"`
	Meta    string `json:"meta"`
}

// validateIndexIntegrity checks index_meta.json before opening.
// Returns nil for a missing index; it will be created.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// OpenBleveIndex opens or creates a bleve index. An empty path creates an
// in-memory index. A corrupted index directory is cleared and recreated.
func OpenBleveIndex(path string) (*BleveIndex, error) {
	indexMapping, err := createEventMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("bleve_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("bleve index corrupted at %s and cannot remove: %w", path, removeErr)
			}
			slog.Info("bleve_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, run tradingrag index"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open bleve index: %w", err)
	}

	return &BleveIndex{index: idx, path: path}, nil
}

func createEventMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(EventAnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": EventTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			EventStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = EventAnalyzerName
	content.Store = true

	source := bleve.NewKeywordFieldMapping()
	source.Store = true

	meta := bleve.NewTextFieldMapping()
	meta.Index = false
	meta.Store = true
	meta.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("source", source)
	doc.AddFieldMappingsAt("meta", meta)

	indexMapping.DefaultMapping = doc
	indexMapping.DefaultAnalyzer = EventAnalyzerName
	return indexMapping, nil
}

// Index adds or replaces events in one batch.
func (b *BleveIndex) Index(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}

	batch := b.index.NewBatch()
	for _, ev := range events {
		meta, err := json.Marshal(ev.Metadata())
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", ev.ID, err)
		}
		doc := bleveEvent{Content: ev.EmbeddingText, Source: ev.Source, Meta: string(meta)}
		if err := batch.Index(ev.ID, doc); err != nil {
			return fmt.Errorf("failed to index event %s: %w", ev.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// SearchText runs a match query on event content.
func (b *BleveIndex) SearchText(ctx context.Context, query string, k int) ([]TextHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrStoreClosed
	}

	query = UnescapeQuery(query)
	if strings.TrimSpace(query) == "" || k <= 0 {
		return []TextHit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = k
	req.Fields = []string{"content", "meta"}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]TextHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		content, _ := hit.Fields["content"].(string)
		meta := map[string]any{}
		if raw, ok := hit.Fields["meta"].(string); ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				slog.Debug("bleve_meta_decode_failed",
					slog.String("id", hit.ID),
					slog.String("error", err.Error()))
			}
		}
		hits = append(hits, TextHit{ID: hit.ID, Content: content, Metadata: meta, Rank: hit.Score})
	}
	return hits, nil
}

// Delete removes events from the index.
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Count returns the number of indexed events.
func (b *BleveIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	n, _ := b.index.DocCount()
	return int(n)
}

// Close closes the index. Idempotent.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func eventTokenizerConstructor(config map[string]any, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveEventTokenizer{}, nil
}

// bleveEventTokenizer emits the same tokens TokenizeText produces.
type bleveEventTokenizer struct{}

func (t *bleveEventTokenizer) Tokenize(input []byte) analysis.TokenStream {
	locs := wordRegex.FindAllIndex(input, -1)
	result := make(analysis.TokenStream, 0, len(locs))
	pos := 1
	for _, loc := range locs {
		term := input[loc[0]:loc[1]]
		if len([]rune(string(term))) < 2 {
			continue
		}
		result = append(result, &analysis.Token{
			Term:     term,
			Start:    loc[0],
			End:      loc[1],
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
	}
	return result
}

func eventStopFilterConstructor(config map[string]any, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveStopFilter{stopWords: defaultStopWordMap}, nil
}

type bleveStopFilter struct {
	stopWords map[string]struct{}
}

func (f *bleveStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[strings.ToLower(string(token.Term))]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
