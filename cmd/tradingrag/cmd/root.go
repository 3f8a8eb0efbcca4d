// Package cmd provides the CLI commands for tradingrag.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
	"github.com/russo2100/trading-analytics-rag/internal/logging"
	"github.com/russo2100/trading-analytics-rag/pkg/version"
)

// Global flags.
var (
	projectDir     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for tradingrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tradingrag",
		Short: "Ask questions about your trading bot's decisions",
		Long: `tradingrag indexes the events your trading bot records (decisions,
trades, market reports) and answers questions about them.

Retrieval combines semantic and full-text search with Reciprocal Rank
Fusion and a reranking pass. Questions are answered either directly from
the retrieved events or by an agent that can search, query session
statistics and calculate.

Typical workflow:
  tradingrag init
  tradingrag import events.jsonl
  tradingrag index
  tradingrag ask "Why did the bot skip trading on 2026-01-30?"`,
		Version:           version.Version,
		SilenceUsage:      true,
		PersistentPreRunE: startLogging,
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			stopLogging()
		},
	}

	cmd.SetVersionTemplate("tradingrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory holding .tradingrag.yaml and data/")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.tradingrag/logs/")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newRetrieveCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newEventsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging enables file logging when --debug is set. serve sets up its
// own file-only logging.
func startLogging(cmd *cobra.Command, _ []string) error {
	if !debugMode || cmd.Name() == "serve" {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("Debug logging enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

func stopLogging() {
	if loggingCleanup != nil {
		slog.Info("Debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := NewRootCmd().ExecuteContext(ctx)
	if hint := ragerrors.GetSuggestion(err); hint != "" {
		fmt.Fprintln(os.Stderr, "Hint: "+hint)
	}
	return err
}
