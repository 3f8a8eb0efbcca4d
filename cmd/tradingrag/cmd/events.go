package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/russo2100/trading-analytics-rag/internal/output"
	"github.com/russo2100/trading-analytics-rag/internal/store"
)

type eventJSON struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Authority float64        `json:"authority"`
	Freshness time.Time      `json:"freshness"`
	Text      string         `json:"embedding_text"`
	Canonical map[string]any `json:"canonical_form,omitempty"`
}

func newEventsCmd() *cobra.Command {
	var (
		source       string
		since        string
		minAuthority float64
		limit        int
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List stored events by source, date and authority",
		Long: `List stored events matching structured filters, freshest first.
No embedding or ranking is involved.`,
		Example: `  tradingrag events --source eia
  tradingrag events --since 2026-01-30 --min-authority 0.8 -n 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := store.MetadataFilter{Source: source, MinAuthority: minAuthority, Limit: limit}
			if since != "" {
				t, err := parseSince(since)
				if err != nil {
					return err
				}
				f.Since = t
			}
			return runEvents(cmd, f, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Only events from this source")
	cmd.Flags().StringVar(&since, "since", "", "Only events at or after this date (2026-01-30 or RFC3339)")
	cmd.Flags().Float64Var(&minAuthority, "min-authority", 0, "Minimum source authority in [0, 1]")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runEvents(cmd *cobra.Command, f store.MetadataFilter, jsonOutput bool) error {
	a, err := openApp(projectDir)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	events, err := a.records.SearchMetadata(cmd.Context(), f)
	if err != nil {
		return err
	}

	if jsonOutput {
		out := make([]eventJSON, 0, len(events))
		for _, ev := range events {
			out = append(out, eventJSON{
				ID:        ev.ID,
				Source:    ev.Source,
				Authority: ev.Authority,
				Freshness: ev.Freshness,
				Text:      ev.EmbeddingText,
				Canonical: ev.CanonicalForm,
			})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	output.New(cmd.OutOrStdout()).Events(events)
	return nil
}

// parseSince accepts a plain date or an RFC3339 timestamp.
func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want 2006-01-02 or RFC3339", s)
	}
	return t, nil
}
