package agent

import (
	"strings"
)

// Role tags a transcript segment.
type Role string

const (
	RoleSystem      Role = "system"
	RoleHistory     Role = "history"
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleObservation Role = "observation"
	RoleNudge       Role = "nudge"
)

// Segment is one piece of the working prompt.
type Segment struct {
	Role Role
	Text string
}

// Transcript is the append-only working prompt of one agent run.
type Transcript struct {
	segments []Segment
}

// Append adds a segment.
func (t *Transcript) Append(role Role, text string) {
	t.segments = append(t.segments, Segment{Role: role, Text: text})
}

// Segments returns a copy of all segments.
func (t *Transcript) Segments() []Segment {
	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

// Len returns the number of segments.
func (t *Transcript) Len() int {
	return len(t.segments)
}

// Count returns how many segments carry role.
func (t *Transcript) Count(role Role) int {
	n := 0
	for _, s := range t.segments {
		if s.Role == role {
			n++
		}
	}
	return n
}

// Render joins every segment with newlines.
func (t *Transcript) Render() string {
	return render(t.segments, 0)
}

// RenderWithin renders the transcript, omitting the oldest history segments
// until the result fits budget tokens. Other roles are never omitted, so the
// result can still exceed budget. budget <= 0 disables trimming.
func (t *Transcript) RenderWithin(counter TokenCounter, budget int) (string, int) {
	prompt := t.Render()
	if budget <= 0 || counter == nil {
		return prompt, 0
	}

	history := t.Count(RoleHistory)
	dropped := 0
	for dropped < history && counter.Count(prompt) > budget {
		dropped++
		prompt = render(t.segments, dropped)
	}
	return prompt, dropped
}

// render skips the first skipHistory history segments.
func render(segments []Segment, skipHistory int) string {
	var b strings.Builder
	first := true
	for _, s := range segments {
		if s.Role == RoleHistory && skipHistory > 0 {
			skipHistory--
			continue
		}
		if !first {
			b.WriteString("\n")
		}
		b.WriteString(s.Text)
		first = false
	}
	return b.String()
}
