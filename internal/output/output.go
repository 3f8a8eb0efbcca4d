// Package output formats CLI results: status lines, retrieved events and
// session statistics.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/russo2100/trading-analytics-rag/internal/retrieval"
	"github.com/russo2100/trading-analytics-rag/internal/store"
)

// snippetLen bounds event text shown per result.
const snippetLen = 300

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Text prints s as-is followed by a newline.
func (w *Writer) Text(s string) {
	_, _ = fmt.Fprintln(w.out, s)
}

// Results prints ranked events as numbered blocks. Each block holds the id,
// score and strategy, then source and freshness, then a content snippet.
func (w *Writer) Results(results []retrieval.Result) {
	if len(results) == 0 {
		w.Warning("No matching events.")
		return
	}
	for i, r := range results {
		_, _ = fmt.Fprintf(w.out, "%d. %s  score %.4f", i+1, r.ID, r.Score)
		if r.Source != "" {
			_, _ = fmt.Fprintf(w.out, "  [%s]", r.Source)
		}
		_, _ = fmt.Fprintln(w.out)
		_, _ = fmt.Fprintf(w.out, "   %s | %s\n",
			metaOr(r.Metadata, "source", "unknown"),
			metaOr(r.Metadata, "freshness", "unknown_date"))
		_, _ = fmt.Fprintf(w.out, "   %s\n", Snippet(r.Content, snippetLen))
	}
}

// Sessions prints session summaries separated by blank lines.
func (w *Writer) Sessions(sessions []store.Session) {
	if len(sessions) == 0 {
		w.Warning("No trading sessions recorded.")
		return
	}
	for i := range sessions {
		if i > 0 {
			w.Newline()
		}
		for _, line := range strings.Split(sessions[i].Summary(), "\n") {
			_, _ = fmt.Fprintf(w.out, "  %s\n", line)
		}
	}
}

// Events prints stored events, one block each.
func (w *Writer) Events(events []*store.Event) {
	if len(events) == 0 {
		w.Warning("No matching events.")
		return
	}
	for _, ev := range events {
		fresh := "unknown_date"
		if !ev.Freshness.IsZero() {
			fresh = ev.Freshness.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w.out, "%s  %s | %s  authority %.2f\n", ev.ID, ev.Source, fresh, ev.Authority)
		_, _ = fmt.Fprintf(w.out, "   %s\n", Snippet(ev.EmbeddingText, snippetLen))
	}
}

// Snippet flattens whitespace and cuts s to n runes.
func Snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func metaOr(meta map[string]any, key, def string) string {
	if v, ok := meta[key]; ok {
		if s := fmt.Sprint(v); s != "" {
			return s
		}
	}
	return def
}
