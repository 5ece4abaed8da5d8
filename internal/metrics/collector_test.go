package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	assert.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	assert.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetGauge().GetValue()
}

// each test uses a distinct namespace: promauto registers into the
// default registry, and a repeated namespace/name pair panics.

func TestRecordEmailProcessed_IncrementsByState(t *testing.T) {
	c := NewCollector("test_email_processed", zap.NewNop())
	c.RecordEmailProcessed("validated")
	c.RecordEmailProcessed("validated")
	c.RecordEmailProcessed("failed")

	assert.Equal(t, float64(2), counterValue(t, c.emailsProcessedTotal, "validated"))
	assert.Equal(t, float64(1), counterValue(t, c.emailsProcessedTotal, "failed"))
}

func TestRecordLLMRequest_AccumulatesTokensAndCost(t *testing.T) {
	c := NewCollector("test_llm_request", zap.NewNop())
	c.RecordLLMRequest("claude", "ok", 2*time.Second, 100, 50, 0.015)
	c.RecordLLMRequest("claude", "ok", time.Second, 100, 50, 0.015)

	assert.Equal(t, float64(2), counterValue(t, c.llmRequestsTotal, "claude", "ok"))
	assert.Equal(t, float64(200), counterValue(t, c.llmTokensUsed, "claude", "in"))
	assert.Equal(t, float64(100), counterValue(t, c.llmTokensUsed, "claude", "out"))
	assert.InDelta(t, 0.03, counterValue(t, c.llmCost, "claude"), 1e-9)
}

func TestSetBreakerState_MapsStateToGaugeValue(t *testing.T) {
	c := NewCollector("test_breaker_state", zap.NewNop())
	c.SetBreakerState("claude", "OPEN")
	assert.Equal(t, float64(2), gaugeValue(t, c.breakerState, "claude"))

	c.SetBreakerState("claude", "HALF_OPEN")
	assert.Equal(t, float64(1), gaugeValue(t, c.breakerState, "claude"))

	c.SetBreakerState("claude", "CLOSED")
	assert.Equal(t, float64(0), gaugeValue(t, c.breakerState, "claude"))
}

func TestSetDLQDepth_PublishesGaugePerStage(t *testing.T) {
	c := NewCollector("test_dlq_depth", zap.NewNop())
	c.SetDLQDepth("extract", 3)
	c.SetDLQDepth("link", 1)

	assert.Equal(t, float64(3), gaugeValue(t, c.dlqDepth, "extract"))
	assert.Equal(t, float64(1), gaugeValue(t, c.dlqDepth, "link"))
}

func TestRecordRun_ObservesDurationByStatus(t *testing.T) {
	c := NewCollector("test_run_duration", zap.NewNop())
	c.RecordRun("ok", 5*time.Second)

	m := &dto.Metric{}
	assert.NoError(t, c.runDuration.WithLabelValues("ok").Write(m))
	assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
}
