package agent

import (
	"regexp"
	"strings"
)

// StepKind classifies one model output.
type StepKind int

const (
	// StepUnknown means neither an action nor a final answer was found.
	StepUnknown StepKind = iota
	StepAction
	StepFinal
)

// Step is the parsed form of one model output.
type Step struct {
	Kind   StepKind
	Tool   string
	Input  string
	Answer string
}

var (
	// Action Input must be on the line right after Action. Only its first
	// line is used.
	actionPattern = regexp.MustCompile(`(?m)^[ \t]*Action:[ \t]*(.+?)[ \t]*\r?\n[ \t]*Action Input:[ \t]*([^\r\n]*)`)
	finalMarker   = "Final Answer:"
)

// ParseOutput extracts an action or a final answer from model output. An
// action takes precedence when both appear.
func ParseOutput(text string) Step {
	if m := actionPattern.FindStringSubmatch(text); m != nil {
		return Step{
			Kind:  StepAction,
			Tool:  strings.TrimSpace(m[1]),
			Input: strings.TrimSpace(m[2]),
		}
	}
	if i := strings.Index(text, finalMarker); i >= 0 {
		return Step{
			Kind:   StepFinal,
			Answer: strings.TrimSpace(text[i+len(finalMarker):]),
		}
	}
	return Step{Kind: StepUnknown}
}
