package ui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Stage is a step of the index build.
type Stage int

const (
	// StageLoading reads events from the record store.
	StageLoading Stage = iota
	// StageEmbedding embeds events into the vector backend.
	StageEmbedding
	// StageSaving persists the vector index.
	StageSaving
	// StageComplete indicates the build finished.
	StageComplete
)

// Icon returns the short stage label.
func (s Stage) Icon() string {
	switch s {
	case StageLoading:
		return "LOAD"
	case StageEmbedding:
		return "EMBED"
	case StageSaving:
		return "SAVE"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is one progress update.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	Message string
}

// CompletionStats summarizes an index build.
type CompletionStats struct {
	Events     int
	Sessions   int
	Duration   time.Duration
	Backend    string
	Dimensions int
}

// PlainRenderer writes progress lines; safe for pipes and CI logs.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(out io.Writer, noColor bool) *PlainRenderer {
	styles := GetStyles(noColor)
	if !IsTTY(out) {
		styles = NoColorStyles()
	}
	return &PlainRenderer{out: out, styles: styles}
}

// UpdateProgress prints "[STAGE] current/total - message".
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	label := r.styles.Stage.Render("[" + event.Stage.Icon() + "]")
	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "%s %d/%d - %s\n", label, event.Current, event.Total, event.Message)
	case event.Message != "":
		_, _ = fmt.Fprintf(r.out, "%s %s\n", label, event.Message)
	}
}

// Warn prints a non-fatal problem.
func (r *PlainRenderer) Warn(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, r.styles.Warning.Render("WARN: "+err.Error()))
}

// Complete prints the summary line.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "%s %d events indexed in %s",
		r.styles.Header.Render("Complete:"), stats.Events, stats.Duration.Round(100*time.Millisecond))
	if stats.Sessions > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d sessions)", stats.Sessions)
	}
	_, _ = fmt.Fprintln(r.out)
	if stats.Backend != "" {
		_, _ = fmt.Fprintf(r.out, "Backend: %s (%d dims)\n", stats.Backend, stats.Dimensions)
	}
}
