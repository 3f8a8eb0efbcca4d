package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeText(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Why did the bot SELL?", []string{"why", "did", "the", "bot", "sell"}},
		{"stop_loss hit at 3.45", []string{"stop", "loss", "hit", "at", "45"}},
		{"Бот закрыл позицию", []string{"бот", "закрыл", "позицию"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TokenizeText(tt.in), tt.in)
	}
}

func TestTerms_DropsStopWords(t *testing.T) {
	assert.Equal(t, []string{"bot", "sell"}, Terms("Why did the bot sell?"))
}

func TestFTSMatchExpr(t *testing.T) {
	assert.Equal(t, `"bot" OR "sell"`, ftsMatchExpr(`Why did the "bot" sell?`))
	assert.Equal(t, "", ftsMatchExpr("the of a"))
}

func TestEscapeQuery_RoundTrips(t *testing.T) {
	for _, in := range []string{`say "hi"`, `""`, "no quotes", `a "" b`} {
		escaped := EscapeQuery(in)
		assert.NotContains(t, strings.ReplaceAll(escaped, `""`, ""), `"`, in)
		assert.Equal(t, in, UnescapeQuery(escaped), in)
	}
	assert.Equal(t, `"bot" OR "sell"`, ftsMatchExpr(EscapeQuery(`Why did the "bot" sell?`)))
}
