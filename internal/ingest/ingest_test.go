package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/russo2100/trading-analytics-rag/internal/store"
)

const eventsJSONL = `{"event_id":"ev-1","source":"logs","embedding_text":"Trading cycle 12: Signal HOLD, Reason: sleeping market","canonical_form":{"cycle":12,"ai_signal":"HOLD"},"metadata":{"authority":0.8,"freshness":"2026-01-30T10:15:00Z"}}

{"source":"eia","timestamp":"2026-01-15","embedding_text":"EIA storage 2850 BCF","canonical_form":{"storage_bcf":2850},"metadata":{"data_period_start":"2026-01-08","data_period_end":"2026-01-15"}}
not json
{"source":"logs","embedding_text":"","metadata":{"authority":0.8,"freshness":"2026-01-30T10:15:00Z"}}
{"source":"blog","embedding_text":"rumour","metadata":{"freshness":"2026-01-30"}}
{"source":"logs","embedding_text":"x","metadata":{"authority":1.5,"freshness":"2026-01-30"}}
`

func TestDecodeEvents(t *testing.T) {
	// Given: a file with two valid events and four bad records
	ctx := context.Background()

	// When
	events, report, err := DecodeEvents(ctx, strings.NewReader(eventsJSONL))

	// Then: valid events decode, bad ones are reported by line
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 7, report.Lines)

	lines := []int{}
	for _, s := range report.Skipped {
		lines = append(lines, s.Line)
	}
	assert.Equal(t, []int{4, 5, 6, 7}, lines)
	assert.Contains(t, report.Skipped[2].Error(), "metadata.authority is required")
	assert.Contains(t, report.Skipped[3].Error(), "between 0 and 1")

	first := events[0]
	assert.Equal(t, "ev-1", first.ID)
	assert.Equal(t, 0.8, first.Authority)
	assert.Equal(t, time.Date(2026, 1, 30, 10, 15, 0, 0, time.UTC), first.Freshness.UTC())
	assert.Equal(t, float64(12), first.CanonicalForm["cycle"])

	eia := events[1]
	assert.Equal(t, EventID("eia", "2026-01-15", map[string]any{"storage_bcf": float64(2850)}), eia.ID)
	assert.Len(t, eia.ID, 32)
	assert.Equal(t, 1.0, eia.Authority)
	require.NotNil(t, eia.PeriodStart)
	require.NotNil(t, eia.PeriodEnd)
	assert.Equal(t, "2026-01-08", eia.PeriodStart.Format("2006-01-02"))
}

func TestEventID_Deterministic(t *testing.T) {
	a := EventID("logs", "2026-01-30T10:15:00Z", map[string]any{"b": 1, "a": 2})
	b := EventID("logs", "2026-01-30T10:15:00Z", map[string]any{"a": 2, "b": 1})
	c := EventID("logs", "2026-01-30T10:16:00Z", map[string]any{"a": 2, "b": 1})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, EventID("logs", "t", nil), EventID("logs", "t", map[string]any{}))
}

func TestDecodeSessions(t *testing.T) {
	input := `{"session_id":"20260130_090000","first_timestamp":"2026-01-30T09:00:00Z","last_timestamp":"2026-01-30T18:00:00Z","total_cycles":240,"total_trades":4,"final_pnl_pct":1.5,"sleeping_market_cycles":30}
{"session_id":"20260129","total_trades":1}
{"date":"2026-01-28"}
{"session_id":"manual"}
`
	sessions, report, err := DecodeSessions(context.Background(), strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Len(t, report.Skipped, 2)

	assert.Equal(t, "2026-01-30", sessions[0].Date)
	assert.Equal(t, 240, sessions[0].TotalCycles)
	assert.Equal(t, 30, sessions[0].SleepingMarketCycles)
	assert.Equal(t, "2026-01-29", sessions[1].Date)
}

func TestDecodeEvents_RoundTripThroughStore(t *testing.T) {
	// Given: decoded events saved into an in-memory store
	ctx := context.Background()
	events, _, err := DecodeEvents(ctx, strings.NewReader(eventsJSONL))
	require.NoError(t, err)

	s, err := store.OpenSQLiteStore("")
	require.NoError(t, err)
	defer s.Close()

	// When: saved and searched
	require.NoError(t, s.SaveEvents(ctx, events))
	hits, err := s.SearchText(ctx, "sleeping", 5)

	// Then
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ev-1", hits[0].ID)
}

func TestDecodeEvents_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := DecodeEvents(ctx, strings.NewReader(eventsJSONL))
	assert.ErrorIs(t, err, context.Canceled)
}
