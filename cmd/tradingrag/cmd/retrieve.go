package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/russo2100/trading-analytics-rag/internal/output"
)

type retrieveResultJSON struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Strategy string         `json:"strategy"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func newRetrieveCmd() *cobra.Command {
	var (
		topK       int
		source     string
		filters    []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Search trading events with hybrid retrieval",
		Long: `Search stored events with semantic and full-text retrieval fused by
Reciprocal Rank Fusion, then reranked.

Filters match metadata exactly and apply to both the semantic and the
full-text results.`,
		Example: `  tradingrag retrieve "sleeping market cooldown"
  tradingrag retrieve "inventory draw" --source eia --top-k 3
  tradingrag retrieve "pnl" --filter type=trade --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseFilters(filters)
			if err != nil {
				return err
			}
			if source != "" {
				parsed["source"] = source
			}
			return runRetrieve(cmd, strings.Join(args, " "), topK, parsed, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of results (default from config)")
	cmd.Flags().StringVar(&source, "source", "", "Only events from this source")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Metadata filter key=value (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runRetrieve(cmd *cobra.Command, query string, topK int, filters map[string]string, jsonOutput bool) error {
	a, err := openApp(projectDir)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if topK <= 0 {
		topK = a.cfg.Retrieval.DefaultTopK
	}
	pipeline, err := a.retriever()
	if err != nil {
		return err
	}
	results, err := pipeline.Retrieve(cmd.Context(), query, topK, filters)
	if err != nil {
		return err
	}

	if jsonOutput {
		out := make([]retrieveResultJSON, 0, len(results))
		for _, r := range results {
			out = append(out, retrieveResultJSON{
				ID:       r.ID,
				Score:    r.Score,
				Strategy: string(r.Source),
				Content:  r.Content,
				Metadata: r.Metadata,
			})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	output.New(cmd.OutOrStdout()).Results(results)
	return nil
}

// parseFilters turns key=value pairs into a filter map.
func parseFilters(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q: want key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
