// Package telemetry exports Prometheus metrics for retrieval, the agent loop
// and the answer cache. A nil *Metrics is valid and records nothing, so
// components can take one unconditionally.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradingrag"

// Stage labels for ObserveStage.
const (
	StageVector   = "vector"
	StageKeyword  = "keyword"
	StageHybrid   = "hybrid"
	StageRerank   = "rerank"
	StagePipeline = "pipeline"
)

// Outcome labels.
const (
	OutcomeAnswer    = "answer"
	OutcomeStepLimit = "step_limit"
	OutcomeError     = "error"
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
)

// Metrics holds every collector. Create with New.
type Metrics struct {
	stageDuration  *prometheus.HistogramVec
	stageResults   *prometheus.CounterVec
	zeroResults    *prometheus.CounterVec
	degradations   *prometheus.CounterVec
	agentRuns      *prometheus.CounterVec
	agentSteps     prometheus.Histogram
	toolCalls      *prometheus.CounterVec
	completions    *prometheus.CounterVec
	completionTime prometheus.Histogram
	cacheLookups   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_stage_duration_seconds",
				Help:      "Duration of each retrieval stage in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"stage"},
		),
		stageResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_results_total",
				Help:      "Results produced per retrieval stage",
			},
			[]string{"stage"},
		),
		zeroResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_zero_results_total",
				Help:      "Retrieval calls that produced no results",
			},
			[]string{"stage"},
		),
		degradations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collaborator_degradations_total",
				Help:      "Collaborator failures absorbed by falling back",
			},
			[]string{"collaborator"},
		),
		agentRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_runs_total",
				Help:      "Agent runs by outcome",
			},
			[]string{"outcome"},
		),
		agentSteps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_steps",
				Help:      "Completion calls per agent run",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10, 15, 20},
			},
		),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_tool_calls_total",
				Help:      "Tool invocations by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_completions_total",
				Help:      "Completion calls by outcome",
			},
			[]string{"outcome"},
		),
		completionTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_completion_duration_seconds",
				Help:      "Completion call duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
			},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answer_cache_total",
				Help:      "Answer cache hits and misses",
			},
			[]string{"result"}, // "hit" / "miss"
		),
	}

	reg.MustRegister(
		m.stageDuration, m.stageResults, m.zeroResults, m.degradations,
		m.agentRuns, m.agentSteps, m.toolCalls,
		m.completions, m.completionTime, m.cacheLookups,
	)
	return m
}

// ObserveStage records one retrieval stage.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, results int) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	m.stageResults.WithLabelValues(stage).Add(float64(results))
	if results == 0 {
		m.zeroResults.WithLabelValues(stage).Inc()
	}
}

// Degraded records a collaborator failure that was absorbed.
func (m *Metrics) Degraded(collaborator string) {
	if m == nil {
		return
	}
	m.degradations.WithLabelValues(collaborator).Inc()
}

// AgentRun records a finished agent run.
func (m *Metrics) AgentRun(outcome string, steps int) {
	if m == nil {
		return
	}
	m.agentRuns.WithLabelValues(outcome).Inc()
	m.agentSteps.Observe(float64(steps))
}

// ToolCall records one tool invocation.
func (m *Metrics) ToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// Completion records one completion call.
func (m *Metrics) Completion(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.completions.WithLabelValues(outcome).Inc()
	m.completionTime.Observe(elapsed.Seconds())
}

// CacheLookup records an answer cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
