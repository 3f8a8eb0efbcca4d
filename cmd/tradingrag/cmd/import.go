package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/russo2100/trading-analytics-rag/internal/ingest"
	"github.com/russo2100/trading-analytics-rag/internal/output"
)

// maxReportedSkips bounds the per-line problems printed after an import.
const maxReportedSkips = 10

func newImportCmd() *cobra.Command {
	var sessions bool

	cmd := &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Import trading events or sessions from JSON Lines",
		Long: `Import normalized trading events (or, with --sessions, session
summaries) from a JSON Lines file. Use "-" to read stdin.

Each event line carries source, timestamp, embedding_text, canonical_form
and metadata (authority, freshness, data_period_start, data_period_end).
Events without an event_id get a deterministic one, so re-importing the
same file updates rather than duplicates. Invalid lines are skipped and
reported.

Run 'tradingrag index' afterwards to refresh the vector index.`,
		Example: `  tradingrag import events.jsonl
  tradingrag import --sessions sessions.jsonl
  cat events.jsonl | tradingrag import -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], sessions)
		},
	}

	cmd.Flags().BoolVar(&sessions, "sessions", false, "File contains session summaries instead of events")

	return cmd
}

func runImport(cmd *cobra.Command, path string, sessions bool) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	a, err := openApp(projectDir)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var (
		report *ingest.Report
		saved  int
	)
	kind := "events"
	if sessions {
		kind = "sessions"
		decoded, rep, err := ingest.DecodeSessions(ctx, r)
		if err != nil {
			return err
		}
		if err := a.records.SaveSessions(ctx, decoded); err != nil {
			return err
		}
		report, saved = rep, len(decoded)
	} else {
		decoded, rep, err := ingest.DecodeEvents(ctx, r)
		if err != nil {
			return err
		}
		if err := a.records.SaveEvents(ctx, decoded); err != nil {
			return err
		}
		report, saved = rep, len(decoded)
	}

	slog.Info("import_complete",
		slog.String("kind", kind),
		slog.Int("saved", saved),
		slog.Int("skipped", len(report.Skipped)),
		slog.Int("lines", report.Lines))

	out.Successf("Imported %d %s from %d lines", saved, kind, report.Lines)
	if n := len(report.Skipped); n > 0 {
		out.Warningf("Skipped %d invalid lines", n)
		for i, skip := range report.Skipped {
			if i == maxReportedSkips {
				out.Statusf("", "  ... and %d more", n-maxReportedSkips)
				break
			}
			out.Statusf("", "  %s", skip.Error())
		}
	}
	if !sessions && saved > 0 {
		out.Status("💡", "Run 'tradingrag index' to refresh the vector index")
	}
	return nil
}
