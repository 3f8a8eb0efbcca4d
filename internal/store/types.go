// Package store persists trading events and sessions and serves the
// vector and full-text indexes the retrievers read from.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Event is a normalized trading event: a bot decision, a trade, a market
// report or any other recorded fact the agent can reason over.
type Event struct {
	ID     string
	Source string

	// EmbeddingText is the text that is embedded and full-text indexed.
	EmbeddingText string
	CanonicalForm map[string]any

	// Authority is source reliability in [0, 1].
	Authority float64
	Freshness time.Time

	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// Metadata returns the flat metadata view attached to retrieval results.
func (e *Event) Metadata() map[string]any {
	m := map[string]any{
		"event_id":  e.ID,
		"source":    e.Source,
		"authority": e.Authority,
	}
	if !e.Freshness.IsZero() {
		m["freshness"] = formatTime(e.Freshness)
	}
	if e.PeriodStart != nil {
		m["data_period_start"] = formatTime(*e.PeriodStart)
	}
	if e.PeriodEnd != nil {
		m["data_period_end"] = formatTime(*e.PeriodEnd)
	}
	if t, ok := e.CanonicalForm["type"]; ok {
		m["type"] = t
	}
	return m
}

// Session summarizes one run of the trading bot.
type Session struct {
	ID   string
	Date string // YYYY-MM-DD

	FirstTimestamp time.Time
	LastTimestamp  time.Time

	TotalCycles int
	TotalTrades int

	InitialLots   float64
	FinalLots     float64
	InitialPnLPct float64
	FinalPnLPct   float64

	SleepingMarketCycles int
	CooldownCycles       int
}

// Summary renders the session for the agent's observation.
func (s *Session) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s (%s)\n", s.ID, s.Date)
	if !s.FirstTimestamp.IsZero() {
		fmt.Fprintf(&b, "Period: %s - %s\n", formatTime(s.FirstTimestamp), formatTime(s.LastTimestamp))
	}
	fmt.Fprintf(&b, "Cycles: %d (sleeping market: %d, cooldown: %d)\n",
		s.TotalCycles, s.SleepingMarketCycles, s.CooldownCycles)
	fmt.Fprintf(&b, "Trades: %d\n", s.TotalTrades)
	fmt.Fprintf(&b, "Lots: %g -> %g\n", s.InitialLots, s.FinalLots)
	fmt.Fprintf(&b, "PnL: %.2f%% -> %.2f%%", s.InitialPnLPct, s.FinalPnLPct)
	return b.String()
}

// VectorHit is one nearest-neighbor match.
type VectorHit struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// TextHit is one full-text match. Rank is the engine relevance, higher is better.
type TextHit struct {
	ID       string
	Content  string
	Metadata map[string]any
	Rank     float64
}

// MetadataFilter selects events by structured fields. Zero values are ignored.
type MetadataFilter struct {
	Source       string
	MinAuthority float64
	Since        time.Time
	Limit        int
}

// VectorSearcher finds events semantically close to a text.
type VectorSearcher interface {
	// SearchText returns at most k hits whose metadata matches filter exactly.
	SearchText(ctx context.Context, text string, k int, filter map[string]string) ([]VectorHit, error)
}

// FullTextSearcher ranks events by term relevance. query arrives escaped
// with EscapeQuery.
type FullTextSearcher interface {
	SearchText(ctx context.Context, query string, k int) ([]TextHit, error)
}

// RecordStore resolves event ids. GetByID returns (nil, nil) when absent.
type RecordStore interface {
	GetByID(ctx context.Context, id string) (*Event, error)
}

// SessionStore looks up bot sessions.
type SessionStore interface {
	// GetSession accepts a session id or a date in either 2026-01-30 or 20260130 form.
	// Returns (nil, nil) when nothing matches.
	GetSession(ctx context.Context, key string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]Session, error)
}

// VectorIndex is a writable VectorSearcher.
type VectorIndex interface {
	VectorSearcher
	Upsert(ctx context.Context, events []*Event) error
	Delete(ctx context.Context, ids []string) error
	Count() int
	Save() error
	Close() error
}

// TextIndex is a writable FullTextSearcher.
type TextIndex interface {
	FullTextSearcher
	Index(ctx context.Context, events []*Event) error
	Close() error
}

// ErrDimensionMismatch is returned when a vector does not fit the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// MatchesFilter reports whether every filter key is present in meta with an
// equal string form.
func MatchesFilter(meta map[string]any, filter map[string]string) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

// stringMetadata flattens metadata for backends that only store strings.
func stringMetadata(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func anyMetadata(meta map[string]string) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func sortHits(hits []VectorHit) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
}

const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime accepts RFC3339 and the plain forms found in bot logs.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// ErrStoreClosed is returned by stores used after Close.
var ErrStoreClosed = errors.New("store is closed")
