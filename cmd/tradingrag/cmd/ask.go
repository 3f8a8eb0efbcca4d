package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/russo2100/trading-analytics-rag/internal/agent"
	"github.com/russo2100/trading-analytics-rag/internal/output"
	"github.com/russo2100/trading-analytics-rag/internal/ui"
)

func newAskCmd() *cobra.Command {
	var (
		direct  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question about the trading bot",
		Long: `Answer a question about the bot's decisions and the market context.

By default an agent reasons step by step, searching the knowledge base,
looking up session statistics and calculating as needed. With --direct
the answer is generated from a single retrieval pass, which is faster
and cached.`,
		Example: `  tradingrag ask "Why did the bot skip trading on 2026-01-30?"
  tradingrag ask --direct "What did the last EIA report say?"
  tradingrag ask -v "How much did PnL change in session 20260130_0900?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), direct, verbose)
		},
	}

	cmd.Flags().BoolVar(&direct, "direct", false, "Answer from one retrieval pass instead of the agent")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show the agent's reasoning steps")

	return cmd
}

func runAsk(cmd *cobra.Command, question string, direct, verbose bool) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	a, err := openApp(projectDir)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if direct {
		gen, err := a.newGenerator()
		if err != nil {
			return err
		}
		answer, err := gen.Answer(ctx, question)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, answer)
		return err
	}

	ag, err := a.newAgent()
	if err != nil {
		return err
	}
	res := ag.RunDetailed(ctx, question)

	if verbose {
		printTranscript(cmd, res)
	}
	_, err = fmt.Fprintln(w, res.Answer)
	return err
}

// printTranscript shows the model turns and observations of one run.
func printTranscript(cmd *cobra.Command, res agent.Result) {
	out := output.New(cmd.ErrOrStderr())
	styles := ui.GetStyles(!ui.IsTTY(cmd.ErrOrStderr()))

	out.Text(styles.Dim.Render(fmt.Sprintf("run %s: %s after %d steps", res.RunID, res.Outcome, res.Steps)))
	for _, seg := range res.Transcript {
		switch seg.Role {
		case agent.RoleAssistant:
			out.Text(styles.Stage.Render(strings.TrimSpace(seg.Text)))
		case agent.RoleObservation:
			out.Text(styles.Dim.Render(strings.TrimSpace(seg.Text)))
		}
	}
	out.Newline()
}
