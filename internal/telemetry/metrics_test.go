package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsStages(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveStage(StageHybrid, 5*time.Millisecond, 3)
	m.ObserveStage(StageHybrid, time.Millisecond, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.stageResults.WithLabelValues(StageHybrid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.zeroResults.WithLabelValues(StageHybrid)))
}

func TestMetrics_AgentAndTools(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AgentRun(OutcomeAnswer, 2)
	m.AgentRun(OutcomeStepLimit, 10)
	m.ToolCall("Calculator", OutcomeOK)
	m.ToolCall("Nope", OutcomeNotFound)
	m.Completion(time.Second, nil)
	m.Completion(time.Second, errors.New("boom"))
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.agentRuns.WithLabelValues(OutcomeStepLimit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("Nope", OutcomeNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues(OutcomeError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStage(StageVector, time.Millisecond, 0)
		m.Degraded("reranker")
		m.AgentRun(OutcomeError, 1)
		m.ToolCall("x", OutcomeOK)
		m.Completion(0, nil)
		m.CacheLookup(true)
	})
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Degraded("reranker")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tradingrag_collaborator_degradations_total{collaborator="reranker"} 1`)
}
