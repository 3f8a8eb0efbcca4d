package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStage_Icon(t *testing.T) {
	assert.Equal(t, "LOAD", StageLoading.Icon())
	assert.Equal(t, "EMBED", StageEmbedding.Icon())
	assert.Equal(t, "SAVE", StageSaving.Icon())
	assert.Equal(t, "DONE", StageComplete.Icon())
	assert.Equal(t, "???", Stage(42).Icon())
}

func TestPlainRenderer_Output(t *testing.T) {
	// Given: a renderer writing to a buffer
	var buf bytes.Buffer
	r := NewPlainRenderer(&buf, false)

	// When: progress, a warning and completion are reported
	r.UpdateProgress(ProgressEvent{Stage: StageEmbedding, Current: 64, Total: 128, Message: "embedding events"})
	r.UpdateProgress(ProgressEvent{Stage: StageSaving, Message: "writing vectors.hnsw"})
	r.UpdateProgress(ProgressEvent{Stage: StageLoading})
	r.Warn(errors.New("2 events without text"))
	r.Complete(CompletionStats{Events: 128, Duration: 1500 * time.Millisecond, Backend: "hnsw", Dimensions: 256})

	// Then: plain lines without ANSI codes
	out := buf.String()
	assert.Contains(t, out, "[EMBED] 64/128 - embedding events\n")
	assert.Contains(t, out, "[SAVE] writing vectors.hnsw\n")
	assert.NotContains(t, out, "[LOAD]")
	assert.Contains(t, out, "WARN: 2 events without text")
	assert.Contains(t, out, "Complete: 128 events indexed in 1.5s")
	assert.Contains(t, out, "Backend: hnsw (256 dims)")
	assert.NotContains(t, out, "\x1b[")
}

func TestIsTTY_NonFile(t *testing.T) {
	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, Interactive(&bytes.Buffer{}, &bytes.Buffer{}))
}

func TestGetStyles_NoColor(t *testing.T) {
	s := GetStyles(true)
	assert.Equal(t, "x", s.Header.Render("x"))
}
