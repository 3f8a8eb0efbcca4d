// Package ingest decodes normalized trading events and session summaries from
// JSON Lines files.
package ingest

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/russo2100/trading-analytics-rag/internal/store"
)

// maxLineBytes bounds one JSONL record.
const maxLineBytes = 4 * 1024 * 1024

// DefaultAuthority is the reliability assigned per source when a record omits it.
var DefaultAuthority = map[string]float64{
	"logs":        0.80,
	"trading_bot": 0.80,
	"eia":         1.00,
	"weather":     0.90,
	"news":        0.60,
	"oi":          0.85,
}

// LineError reports a record that could not be decoded.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Report summarizes one decode pass.
type Report struct {
	Lines   int
	Skipped []*LineError
}

type eventRecord struct {
	EventID       string         `json:"event_id"`
	Source        string         `json:"source"`
	Timestamp     string         `json:"timestamp"`
	EmbeddingText string         `json:"embedding_text"`
	CanonicalForm map[string]any `json:"canonical_form"`
	Metadata      struct {
		Authority       *float64 `json:"authority"`
		Freshness       string   `json:"freshness"`
		DataPeriodStart string   `json:"data_period_start"`
		DataPeriodEnd   string   `json:"data_period_end"`
	} `json:"metadata"`
}

type sessionRecord struct {
	ID                   string  `json:"session_id"`
	Date                 string  `json:"date"`
	FirstTimestamp       string  `json:"first_timestamp"`
	LastTimestamp        string  `json:"last_timestamp"`
	TotalCycles          int     `json:"total_cycles"`
	TotalTrades          int     `json:"total_trades"`
	InitialLots          float64 `json:"initial_lots"`
	FinalLots            float64 `json:"final_lots"`
	InitialPnLPct        float64 `json:"initial_pnl_pct"`
	FinalPnLPct          float64 `json:"final_pnl_pct"`
	SleepingMarketCycles int     `json:"sleeping_market_cycles"`
	CooldownCycles       int     `json:"cooldown_cycles"`
}

// EventID derives the deterministic id md5(source + timestamp + canonical_form)
// used when a record has none. canonical is serialized with sorted keys.
func EventID(source, timestamp string, canonical map[string]any) string {
	form := "{}"
	if len(canonical) > 0 {
		if data, err := json.Marshal(canonical); err == nil {
			form = string(data)
		}
	}
	sum := md5.Sum([]byte(source + timestamp + form))
	return hex.EncodeToString(sum[:])
}

// DecodeEvents reads one event per line. Blank lines are ignored; malformed
// records are reported in Report.Skipped and do not stop decoding.
func DecodeEvents(ctx context.Context, r io.Reader) ([]*store.Event, *Report, error) {
	var events []*store.Event
	report, err := scanLines(ctx, r, func(line []byte) error {
		ev, err := decodeEvent(line)
		if err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	return events, report, err
}

// DecodeSessions reads one session summary per line.
func DecodeSessions(ctx context.Context, r io.Reader) ([]store.Session, *Report, error) {
	var sessions []store.Session
	report, err := scanLines(ctx, r, func(line []byte) error {
		s, err := decodeSession(line)
		if err != nil {
			return err
		}
		sessions = append(sessions, s)
		return nil
	})
	return sessions, report, err
}

func scanLines(ctx context.Context, r io.Reader, fn func([]byte) error) (*Report, error) {
	report := &Report{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Lines++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			lerr := &LineError{Line: report.Lines, Err: err}
			report.Skipped = append(report.Skipped, lerr)
			slog.Debug("ingest_record_skipped", slog.Int("line", lerr.Line), slog.String("error", err.Error()))
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("read input: %w", err)
	}
	return report, nil
}

func decodeEvent(line []byte) (*store.Event, error) {
	var rec eventRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if strings.TrimSpace(rec.Source) == "" {
		return nil, fmt.Errorf("source is required")
	}
	if strings.TrimSpace(rec.EmbeddingText) == "" {
		return nil, fmt.Errorf("embedding_text is required")
	}

	authority, ok := DefaultAuthority[rec.Source]
	if rec.Metadata.Authority != nil {
		authority, ok = *rec.Metadata.Authority, true
	}
	if !ok {
		return nil, fmt.Errorf("metadata.authority is required for source %q", rec.Source)
	}
	if authority < 0 || authority > 1 {
		return nil, fmt.Errorf("authority must be between 0 and 1, got %g", authority)
	}

	freshnessRaw := rec.Metadata.Freshness
	if freshnessRaw == "" {
		freshnessRaw = rec.Timestamp
	}
	if freshnessRaw == "" {
		return nil, fmt.Errorf("metadata.freshness is required")
	}
	freshness, err := store.ParseTime(freshnessRaw)
	if err != nil {
		return nil, fmt.Errorf("freshness: %w", err)
	}

	ev := &store.Event{
		ID:            rec.EventID,
		Source:        rec.Source,
		EmbeddingText: rec.EmbeddingText,
		CanonicalForm: rec.CanonicalForm,
		Authority:     authority,
		Freshness:     freshness,
	}
	if ev.ID == "" {
		ts := rec.Timestamp
		if ts == "" {
			ts = freshnessRaw
		}
		ev.ID = EventID(rec.Source, ts, rec.CanonicalForm)
	}
	if ev.PeriodStart, err = optionalTime(rec.Metadata.DataPeriodStart); err != nil {
		return nil, fmt.Errorf("data_period_start: %w", err)
	}
	if ev.PeriodEnd, err = optionalTime(rec.Metadata.DataPeriodEnd); err != nil {
		return nil, fmt.Errorf("data_period_end: %w", err)
	}
	return ev, nil
}

func decodeSession(line []byte) (store.Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return store.Session{}, fmt.Errorf("invalid json: %w", err)
	}
	if rec.ID == "" {
		return store.Session{}, fmt.Errorf("session_id is required")
	}

	s := store.Session{
		ID:                   rec.ID,
		Date:                 rec.Date,
		TotalCycles:          rec.TotalCycles,
		TotalTrades:          rec.TotalTrades,
		InitialLots:          rec.InitialLots,
		FinalLots:            rec.FinalLots,
		InitialPnLPct:        rec.InitialPnLPct,
		FinalPnLPct:          rec.FinalPnLPct,
		SleepingMarketCycles: rec.SleepingMarketCycles,
		CooldownCycles:       rec.CooldownCycles,
	}
	if first, err := optionalTime(rec.FirstTimestamp); err != nil {
		return store.Session{}, fmt.Errorf("first_timestamp: %w", err)
	} else if first != nil {
		s.FirstTimestamp = *first
	}
	if last, err := optionalTime(rec.LastTimestamp); err != nil {
		return store.Session{}, fmt.Errorf("last_timestamp: %w", err)
	} else if last != nil {
		s.LastTimestamp = *last
	}
	if s.Date == "" {
		switch {
		case !s.FirstTimestamp.IsZero():
			s.Date = s.FirstTimestamp.Format("2006-01-02")
		case len(s.ID) >= 8:
			if t, err := time.Parse("20060102", s.ID[:8]); err == nil {
				s.Date = t.Format("2006-01-02")
			}
		}
	}
	if s.Date == "" {
		return store.Session{}, fmt.Errorf("date is required")
	}
	return s, nil
}

func optionalTime(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := store.ParseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
