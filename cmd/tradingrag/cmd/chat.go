package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/russo2100/trading-analytics-rag/internal/generate"
	"github.com/russo2100/trading-analytics-rag/internal/ui"
)

func newChatCmd() *cobra.Command {
	var (
		direct  bool
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive question answering",
		Long: `Start an interactive session with the trading analytics agent.

The agent remembers the last few exchanges, so follow-up questions work.
Type /reset to clear the history and /quit to leave. When stdin or stdout
is not a terminal, questions are read one per line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, direct, noColor)
		},
	}

	cmd.Flags().BoolVar(&direct, "direct", false, "Answer each question from one retrieval pass, without history")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runChat(cmd *cobra.Command, direct, noColor bool) error {
	a, err := openApp(projectDir)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var asker ui.Asker
	if direct {
		gen, err := a.newGenerator()
		if err != nil {
			return err
		}
		asker = generatorAsker{gen}
	} else {
		ag, err := a.newAgent()
		if err != nil {
			return err
		}
		asker = ag
	}

	return ui.RunChat(cmd.Context(), asker, cmd.InOrStdin(), cmd.OutOrStdout(), noColor || ui.DetectNoColor())
}

// generatorAsker renders generation errors as the answer text.
type generatorAsker struct {
	gen *generate.Generator
}

func (g generatorAsker) Run(ctx context.Context, question string) string {
	answer, err := g.gen.Answer(ctx, question)
	if err != nil {
		return "Error: " + err.Error()
	}
	return answer
}
