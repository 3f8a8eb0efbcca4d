package mcp

import (
	"fmt"
	"strings"
)

// maxContentLen bounds content shown per result.
const maxContentLen = 600

// FormatResults renders retrieve results as markdown.
func FormatResults(query string, results []ResultOutput) string {
	if len(results) == 0 {
		return fmt.Sprintf("No events found for: %q\n\nTry broader terms or a different date.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Events for %q\n\n", query)
	fmt.Fprintf(&b, "Found %d result(s).\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "\n### %d. %s (score %.3f)\n", i+1, r.ID, r.Score)
		if r.Source != "" || r.Freshness != "" {
			fmt.Fprintf(&b, "**Source:** %s  **Date:** %s\n", orDash(r.Source), orDash(r.Freshness))
		}
		b.WriteString("\n")
		b.WriteString(truncate(r.Content, maxContentLen))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatSessions renders session summaries as markdown.
func FormatSessions(sessions []SessionSummary) string {
	if len(sessions) == 0 {
		return "No trading sessions found."
	}
	parts := make([]string, len(sessions))
	for i, s := range sessions {
		parts[i] = "```\n" + s.Summary + "\n```"
	}
	return strings.Join(parts, "\n\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
