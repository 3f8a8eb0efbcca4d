package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/russo2100/trading-analytics-rag/internal/output"
	"github.com/russo2100/trading-analytics-rag/internal/store"
)

func newSessionsCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "sessions [session-id|date]",
		Short: "Show trading session statistics",
		Long: `Without arguments, list the most recent sessions. With a session id or
a date (2026-01-30 or 20260130), show that session.`,
		Example: `  tradingrag sessions
  tradingrag sessions 2026-01-30
  tradingrag sessions 20260130_0900 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 1 {
				key = args[0]
			}
			return runSessions(cmd, key, limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of sessions to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSessions(cmd *cobra.Command, key string, limit int, jsonOutput bool) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	a, err := openApp(projectDir)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var sessions []store.Session
	if key == "" {
		sessions, err = a.records.ListSessions(ctx, limit)
		if err != nil {
			return err
		}
	} else {
		s, err := a.records.GetSession(ctx, key)
		if err != nil {
			return err
		}
		if s == nil {
			out.Warningf("No session found for %q", key)
			return nil
		}
		sessions = []store.Session{*s}
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}
	out.Sessions(sessions)
	return nil
}
