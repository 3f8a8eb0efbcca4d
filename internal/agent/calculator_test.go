package agent

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"100 * 2", 200},
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 / 4", 2.5},
		{"2 ^ 3 ^ 2", 512},
		{"2 ** 3", 8},
		{"-2 ^ 2", -4},
		{"2 ^ -1", 0.5},
		{"--3", 3},
		{"-(1.5 - 0.8) * 100", -70},
		{"sqrt(16) + abs(-2)", 6},
		{"round(2.5)", 3},
		{"floor(2.7) + ceil(2.1)", 5},
		{"min(3, 1, 2)", 1},
		{"max(3, 1, 2)", 3},
		{"pow(2, 10)", 1024},
		{"log(e)", 1},
		{"exp(0)", 1},
		{"pi", math.Pi},
		{"1.5e2", 150},
		{"MAX(1, 2)", 2},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEvaluate_Rejects(t *testing.T) {
	tests := []struct {
		expr    string
		errPart string
	}{
		{"1 / 0", "division by zero"},
		{"__import__('os')", "unknown function"},
		{"open", "unknown name"},
		{"1 +", "unexpected end"},
		{"(1 + 2", "missing closing parenthesis"},
		{"2 $ 3", "unexpected"},
		{"pow(2)", "expects 2 argument"},
		{"max()", "at least one"},
		{"sqrt(-1)", "not a finite number"},
		{"1 2", "unexpected"},
		{"", "unexpected end"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Evaluate(tt.expr)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestCalculator_Run(t *testing.T) {
	out, err := Calculator{}.Run(context.Background(), " `100 * 2` ")
	require.NoError(t, err)
	assert.Equal(t, "200", out)

	out, err = Calculator{}.Run(context.Background(), "1/0")
	require.NoError(t, err)
	assert.Equal(t, "Error calculating '1/0': division by zero", out)
}
