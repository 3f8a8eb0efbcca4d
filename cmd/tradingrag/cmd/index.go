package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/russo2100/trading-analytics-rag/internal/index"
	"github.com/russo2100/trading-analytics-rag/internal/output"
	"github.com/russo2100/trading-analytics-rag/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		batchSize int
		check     bool
		noColor   bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the vector index from imported events",
		Long: `Embed every stored event into the configured vector backend and save it.

With the bleve full-text backend the bleve index is rebuilt as well; the
SQLite backend is kept in sync on import.

Only one build runs at a time: a second 'tradingrag index' fails fast
while the index lock is held. A running 'tradingrag serve' picks up the
new index automatically.`,
		Example: `  tradingrag index
  tradingrag index --check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if check {
				return runIndexCheck(cmd)
			}
			return runIndex(cmd, batchSize, noColor)
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", index.DefaultBatchSize, "Events embedded per batch")
	cmd.Flags().BoolVar(&check, "check", false, "Only report whether the index matches the event store")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runIndex(cmd *cobra.Command, batchSize int, noColor bool) error {
	ctx := cmd.Context()
	start := time.Now()

	a, err := openApp(projectDir)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.openIndexes(); err != nil {
		return err
	}
	lock, err := a.newLock()
	if err != nil {
		return err
	}

	renderer := ui.NewPlainRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor())
	runner, err := index.NewRunner(index.RunnerDependencies{
		Renderer: renderer,
		Records:  a.records,
		Vector:   a.vector,
		Text:     a.text,
		Lock:     lock,
	})
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx, index.RunnerConfig{BatchSize: batchSize})
	if err != nil {
		return err
	}

	renderer.Complete(ui.CompletionStats{
		Events:     result.Events,
		Duration:   time.Since(start),
		Backend:    a.cfg.Retrieval.VectorBackend + "/" + a.embedder.ModelName(),
		Dimensions: a.embedder.Dimensions(),
	})
	return nil
}

func runIndexCheck(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	a, err := openApp(projectDir)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.openIndexes(); err != nil {
		return err
	}
	if err := a.records.IntegrityCheck(cmd.Context()); err != nil {
		return err
	}
	out.Success("event store integrity ok")

	res, err := index.Check(cmd.Context(), a.records, a.vector)
	if err != nil {
		return err
	}
	if res.Stale() {
		out.Warning(res.String())
		out.Status("💡", "Run 'tradingrag index' to rebuild")
		return errors.New(res.String())
	}
	out.Success(res.String())
	return nil
}
