package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Asker answers one question. *agent.Agent satisfies it.
type Asker interface {
	Run(ctx context.Context, question string) string
}

// Resetter is implemented by askers that keep conversation history.
type Resetter interface {
	Reset()
}

// Chat commands.
const (
	cmdQuit  = "/quit"
	cmdExit  = "/exit"
	cmdReset = "/reset"
)

const chatTitle = "Trading analytics chat"

type exchange struct {
	question string
	answer   string
	pending  bool
}

type answerMsg struct {
	answer string
}

// ChatModel is the bubbletea model for `tradingrag chat`.
type ChatModel struct {
	ctx     context.Context
	asker   Asker
	input   textinput.Model
	spinner spinner.Model
	styles  Styles
	history []exchange
	notice  string
	width   int
	busy    bool
}

// NewChatModel creates the chat model.
func NewChatModel(ctx context.Context, asker Asker, styles Styles) ChatModel {
	in := textinput.New()
	in.Placeholder = "Why did the bot skip trading on 2026-01-30?"
	in.Prompt = "> "
	in.CharLimit = 2000
	in.Width = 80
	in.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Spinner))

	return ChatModel{
		ctx:     ctx,
		asker:   asker,
		input:   in,
		spinner: sp,
		styles:  styles,
		width:   80,
	}
}

// Init implements tea.Model.
func (m ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}
	case answerMsg:
		m.busy = false
		if n := len(m.history); n > 0 {
			m.history[n-1].answer = msg.answer
			m.history[n-1].pending = false
		}
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m ChatModel) submit() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	question := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	m.notice = ""

	switch strings.ToLower(question) {
	case "":
		return m, nil
	case cmdQuit, cmdExit:
		return m, tea.Quit
	case cmdReset:
		if r, ok := m.asker.(Resetter); ok {
			r.Reset()
		}
		m.history = nil
		m.notice = "History cleared."
		return m, nil
	}

	m.busy = true
	m.history = append(m.history, exchange{question: question, pending: true})
	return m, tea.Batch(m.spinner.Tick, m.ask(question))
}

func (m ChatModel) ask(question string) tea.Cmd {
	ctx, asker := m.ctx, m.asker
	return func() tea.Msg {
		return answerMsg{answer: asker.Run(ctx, question)}
	}
}

// View implements tea.Model.
func (m ChatModel) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Header.Render(chatTitle))
	b.WriteString("\n\n")

	answerStyle := m.styles.Answer.Width(max(m.width-2, 20))
	for _, ex := range m.history {
		b.WriteString(m.styles.Question.Render("Q: " + ex.question))
		b.WriteString("\n")
		if ex.pending {
			b.WriteString(m.spinner.View() + " " + m.styles.Dim.Render("Thinking..."))
		} else {
			b.WriteString(answerStyle.Render(ex.answer))
		}
		b.WriteString("\n\n")
	}

	if m.notice != "" {
		b.WriteString(m.styles.Warning.Render(m.notice))
		b.WriteString("\n\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.styles.Dim.Render(lipgloss.JoinHorizontal(lipgloss.Top,
		"enter: ask  ", cmdReset+": clear history  ", "esc: quit")))
	b.WriteString("\n")
	return b.String()
}

// RunChat starts the full-screen chat on a terminal and a line-based loop
// otherwise.
func RunChat(ctx context.Context, asker Asker, in io.Reader, out io.Writer, noColor bool) error {
	if !Interactive(in, out) {
		return RunPlainChat(ctx, asker, in, out)
	}
	model := NewChatModel(ctx, asker, GetStyles(noColor))
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// RunPlainChat reads one question per line until EOF or /quit.
func RunPlainChat(ctx context.Context, asker Asker, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	_, _ = fmt.Fprintf(out, "%s (%s to exit)\n> ", chatTitle, cmdQuit)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
		case cmdQuit, cmdExit:
			return nil
		case cmdReset:
			if r, ok := asker.(Resetter); ok {
				r.Reset()
			}
			_, _ = fmt.Fprintln(out, "History cleared.")
		default:
			_, _ = fmt.Fprintln(out, asker.Run(ctx, question))
		}
		_, _ = fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}
