package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Step
	}{
		{
			name: "indented action block",
			text: "\n        Thought: I need to calculate\n        Action: Calculator\n        Action Input: 2 + 2\n        ",
			want: Step{Kind: StepAction, Tool: "Calculator", Input: "2 + 2"},
		},
		{
			name: "input is first line only",
			text: "Action: SessionQuery\nAction Input: 2026-01-30\nObservation: made up",
			want: Step{Kind: StepAction, Tool: "SessionQuery", Input: "2026-01-30"},
		},
		{
			name: "windows line endings",
			text: "Action: Calculator\r\nAction Input: 1+1\r\n",
			want: Step{Kind: StepAction, Tool: "Calculator", Input: "1+1"},
		},
		{
			name: "final answer trimmed",
			text: "Thought: Do I need to use a tool? No\nFinal Answer:   The stop loss was hit.\n",
			want: Step{Kind: StepFinal, Answer: "The stop loss was hit."},
		},
		{
			name: "multi-line final answer",
			text: "Final Answer: - one\n- two",
			want: Step{Kind: StepFinal, Answer: "- one\n- two"},
		},
		{
			name: "action wins over final answer",
			text: "Action: Calculator\nAction Input: 3*3\nFinal Answer: 9",
			want: Step{Kind: StepAction, Tool: "Calculator", Input: "3*3"},
		},
		{
			name: "action without input is not an action",
			text: "Thought: Nothing to do\nAction: Calculator",
			want: Step{Kind: StepUnknown},
		},
		{
			name: "plain thought",
			text: "Thought: Nothing to do",
			want: Step{Kind: StepUnknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOutput(tt.text))
		})
	}
}
