// Package agent implements a ReAct reasoning loop: the model alternates
// between tool calls and observations until it produces a final answer or
// runs out of steps.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/russo2100/trading-analytics-rag/internal/llm"
	"github.com/russo2100/trading-analytics-rag/internal/telemetry"
)

// Defaults.
const (
	DefaultMaxSteps      = 10
	DefaultMaxTokens     = 1000
	DefaultHistoryWindow = 3
	DefaultTokenBudget   = 6000
)

// ErrNilCompleter is returned by New when no completer is given.
var ErrNilCompleter = errors.New("agent requires a completer")

// stopSequence keeps the model from inventing its own observations.
const stopSequence = "\nObservation:"

// Exchange is one answered question kept for follow-ups.
type Exchange struct {
	Question string
	Answer   string
}

// Config tunes the loop.
type Config struct {
	MaxSteps      int
	MaxTokens     int
	HistoryWindow int
	// TokenBudget caps the rendered prompt; oldest history is dropped first.
	TokenBudget int
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{
		MaxSteps:      DefaultMaxSteps,
		MaxTokens:     DefaultMaxTokens,
		HistoryWindow: DefaultHistoryWindow,
		TokenBudget:   DefaultTokenBudget,
	}
}

// Option configures an Agent.
type Option func(*Agent)

// WithConfig replaces the loop settings. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(a *Agent) {
		if cfg.MaxSteps > 0 {
			a.cfg.MaxSteps = cfg.MaxSteps
		}
		if cfg.MaxTokens > 0 {
			a.cfg.MaxTokens = cfg.MaxTokens
		}
		if cfg.HistoryWindow > 0 {
			a.cfg.HistoryWindow = cfg.HistoryWindow
		}
		if cfg.TokenBudget > 0 {
			a.cfg.TokenBudget = cfg.TokenBudget
		}
	}
}

// WithMaxSteps sets the completion call budget.
func WithMaxSteps(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.cfg.MaxSteps = n
		}
	}
}

// WithTokenCounter replaces the default tiktoken counter.
func WithTokenCounter(c TokenCounter) Option {
	return func(a *Agent) {
		a.counter = c
	}
}

// WithMetrics attaches metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// Result describes a finished run.
type Result struct {
	RunID      string
	Answer     string
	Outcome    string // telemetry.OutcomeAnswer, OutcomeStepLimit or OutcomeError
	Steps      int
	Transcript []Segment
}

// Agent runs the ReAct loop. Runs are serialized: history is shared state.
type Agent struct {
	completer llm.Completer
	tools     *Registry
	cfg       Config
	counter   TokenCounter
	metrics   *telemetry.Metrics

	mu      sync.Mutex
	history []Exchange
}

// New creates an agent.
func New(completer llm.Completer, tools *Registry, opts ...Option) (*Agent, error) {
	if completer == nil {
		return nil, ErrNilCompleter
	}
	if tools == nil {
		tools = NewRegistry()
	}
	a := &Agent{
		completer: completer,
		tools:     tools,
		cfg:       DefaultConfig(),
		counter:   NewTiktokenCounter(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Tools returns the registry.
func (a *Agent) Tools() *Registry {
	return a.tools
}

// History returns a copy of the remembered exchanges, oldest first.
func (a *Agent) History() []Exchange {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Exchange, len(a.history))
	copy(out, a.history)
	return out
}

// Reset forgets history.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
}

// Run answers question. It always returns text: completion failures come
// back as "Error: ..." and an exhausted budget as StepLimitMessage.
func (a *Agent) Run(ctx context.Context, question string) string {
	return a.RunDetailed(ctx, question).Answer
}

// RunDetailed is Run with the transcript and outcome.
func (a *Agent) RunDetailed(ctx context.Context, question string) (res Result) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res = Result{RunID: uuid.NewString()}
	start := time.Now()
	logger := slog.With(slog.String("run_id", res.RunID))
	logger.Info("agent_run_start",
		slog.String("question", question),
		slog.Int("max_steps", a.cfg.MaxSteps))

	var tr Transcript
	tr.Append(RoleSystem, systemPrompt(a.tools))
	for _, ex := range a.recentHistory() {
		tr.Append(RoleHistory, historyText(ex))
	}
	tr.Append(RoleUser, questionText(question))

	defer func() {
		res.Transcript = tr.Segments()
		a.metrics.AgentRun(res.Outcome, res.Steps)
		logger.Info("agent_run_done",
			slog.String("outcome", res.Outcome),
			slog.Int("steps", res.Steps),
			slog.Duration("duration", time.Since(start)))
	}()

	for res.Steps < a.cfg.MaxSteps {
		res.Steps++

		prompt, dropped := tr.RenderWithin(a.counter, a.cfg.TokenBudget)
		if dropped > 0 {
			logger.Debug("agent_history_trimmed", slog.Int("dropped", dropped))
		}

		callStart := time.Now()
		output, err := a.completer.Complete(ctx, llm.Request{
			Prompt:      prompt,
			Temperature: 0,
			MaxTokens:   a.cfg.MaxTokens,
			Stop:        []string{stopSequence},
		})
		a.metrics.Completion(time.Since(callStart), err)
		if err != nil {
			logger.Error("agent_completion_failed",
				slog.Int("step", res.Steps),
				slog.String("error", err.Error()))
			res.Outcome = telemetry.OutcomeError
			res.Answer = "Error: " + err.Error()
			return res
		}
		tr.Append(RoleAssistant, output)

		step := ParseOutput(output)
		switch step.Kind {
		case StepAction:
			obs := a.runTool(ctx, step.Tool, step.Input)
			logger.Debug("agent_action",
				slog.Int("step", res.Steps),
				slog.String("tool", step.Tool),
				slog.String("input", step.Input))
			tr.Append(RoleObservation, observationText(obs))
		case StepFinal:
			a.remember(Exchange{Question: question, Answer: step.Answer})
			res.Outcome = telemetry.OutcomeAnswer
			res.Answer = step.Answer
			return res
		default:
			logger.Debug("agent_unparsed_output", slog.Int("step", res.Steps))
			tr.Append(RoleNudge, nudgeText)
		}
	}

	res.Outcome = telemetry.OutcomeStepLimit
	res.Answer = StepLimitMessage
	return res
}

// runTool never fails: lookup misses and tool errors become observations.
func (a *Agent) runTool(ctx context.Context, name, input string) string {
	tool, ok := a.tools.Get(name)
	if !ok {
		a.metrics.ToolCall(name, telemetry.OutcomeNotFound)
		return notFoundText(name, a.tools)
	}

	out, err := tool.Run(ctx, input)
	if err != nil {
		a.metrics.ToolCall(name, telemetry.OutcomeError)
		slog.Warn("agent_tool_failed",
			slog.String("tool", name),
			slog.String("error", err.Error()))
		return fmt.Sprintf("Error running %s: %v", name, err)
	}
	a.metrics.ToolCall(name, telemetry.OutcomeOK)
	return out
}

// must hold a.mu
func (a *Agent) recentHistory() []Exchange {
	n := a.cfg.HistoryWindow
	if len(a.history) <= n {
		return a.history
	}
	return a.history[len(a.history)-n:]
}

// must hold a.mu
func (a *Agent) remember(ex Exchange) {
	a.history = append(a.history, ex)
	if len(a.history) > a.cfg.HistoryWindow {
		a.history = a.history[len(a.history)-a.cfg.HistoryWindow:]
	}
}
