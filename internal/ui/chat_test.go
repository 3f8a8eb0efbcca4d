package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAsker struct {
	questions []string
	resets    int
}

func (f *fakeAsker) Run(_ context.Context, q string) string {
	f.questions = append(f.questions, q)
	return "answer to " + q
}

func (f *fakeAsker) Reset() { f.resets++ }

func typeText(m ChatModel, s string) ChatModel {
	for _, r := range s {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(ChatModel)
	}
	return m
}

func TestChatModel_AskRoundTrip(t *testing.T) {
	// Given: a chat model with a question typed in
	asker := &fakeAsker{}
	m := NewChatModel(context.Background(), asker, NoColorStyles())
	m = typeText(m, "why no trades?")

	// When: the user presses enter
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(ChatModel)

	// Then: the model is busy and shows the pending question
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Equal(t, "", m.input.Value())
	assert.Contains(t, m.View(), "Q: why no trades?")
	assert.Contains(t, m.View(), "Thinking...")

	// When: the answer arrives
	next, _ = m.Update(answerMsg{answer: "sleeping market"})
	m = next.(ChatModel)

	// Then: it is rendered and input is accepted again
	assert.False(t, m.busy)
	assert.Contains(t, m.View(), "sleeping market")
	assert.NotContains(t, m.View(), "Thinking...")
}

func TestChatModel_AskCommandCallsAsker(t *testing.T) {
	asker := &fakeAsker{}
	m := NewChatModel(context.Background(), asker, NoColorStyles())

	msg := m.ask("pnl today?")()

	assert.Equal(t, answerMsg{answer: "answer to pnl today?"}, msg)
	assert.Equal(t, []string{"pnl today?"}, asker.questions)
}

func TestChatModel_EnterIgnoredWhileBusy(t *testing.T) {
	m := NewChatModel(context.Background(), &fakeAsker{}, NoColorStyles())
	m = typeText(m, "first")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = typeText(next.(ChatModel), "second")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.Len(t, next.(ChatModel).history, 1)
}

func TestChatModel_ResetClearsHistory(t *testing.T) {
	asker := &fakeAsker{}
	m := NewChatModel(context.Background(), asker, NoColorStyles())
	m.history = []exchange{{question: "q", answer: "a"}}
	m = typeText(m, "/reset")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(ChatModel)

	assert.Empty(t, m.history)
	assert.Equal(t, 1, asker.resets)
	assert.Contains(t, m.View(), "History cleared.")
}

func TestChatModel_Quit(t *testing.T) {
	m := NewChatModel(context.Background(), &fakeAsker{}, NoColorStyles())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	m = typeText(m, "/quit")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestRunPlainChat(t *testing.T) {
	// Given: piped input with two questions, a reset and a quit
	asker := &fakeAsker{}
	in := strings.NewReader("first?\n\n/reset\nsecond?\n/quit\nnever asked\n")
	var out bytes.Buffer

	// When
	err := RunPlainChat(context.Background(), asker, in, &out)

	// Then
	require.NoError(t, err)
	assert.Equal(t, []string{"first?", "second?"}, asker.questions)
	assert.Equal(t, 1, asker.resets)
	assert.Contains(t, out.String(), "answer to second?")
	assert.Contains(t, out.String(), "History cleared.")
}

func TestRunChat_FallsBackToPlainOnPipes(t *testing.T) {
	asker := &fakeAsker{}
	var out bytes.Buffer

	err := RunChat(context.Background(), asker, strings.NewReader("hi\n"), &out, true)

	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, asker.questions)
}
