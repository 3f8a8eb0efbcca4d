package store

import (
	"time"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleEvents() []*Event {
	return []*Event{
		{
			ID:            "ev-1",
			Source:        "logs",
			EmbeddingText: "Bot closed short position on NG after stop loss triggered at 3.45",
			CanonicalForm: map[string]any{"type": "trade_close", "side": "short"},
			Authority:     0.9,
			Freshness:     ts("2026-01-30T10:15:00Z"),
		},
		{
			ID:            "ev-2",
			Source:        "eia",
			EmbeddingText: "EIA weekly storage report: injection of 45 bcf above five-year average",
			CanonicalForm: map[string]any{"type": "storage_report"},
			Authority:     1.0,
			Freshness:     ts("2026-01-29T14:30:00Z"),
		},
		{
			ID:            "ev-3",
			Source:        "logs",
			EmbeddingText: "Sleeping market detected, bot skipped entry during cooldown",
			CanonicalForm: map[string]any{"type": "skip"},
			Authority:     0.7,
			Freshness:     ts("2026-01-28T09:00:00Z"),
		},
	}
}
