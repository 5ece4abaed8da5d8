// Package metrics provides internal Prometheus metrics collection for
// the pipeline. Adapted from the teacher's internal/metrics/collector.go:
// the HTTP/agent/cache/db metric groups are replaced with the pipeline's
// own concerns (emails processed, provider health, DLQ depth, LLM cost).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds every Prometheus vector CollabIQ exports.
type Collector struct {
	emailsProcessedTotal *prometheus.CounterVec
	runDuration          *prometheus.HistogramVec

	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec

	breakerState *prometheus.GaugeVec

	dlqDepth *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector registers all vectors under namespace and returns a
// ready Collector.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.emailsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_processed_total",
			Help:      "Total number of emails processed, by terminal state",
		},
		[]string{"state"}, // validated, failed, skipped
	)

	c.runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Pipeline run wall-clock duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM extraction requests",
		},
		[]string{"provider", "status"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM extraction request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "type"}, // type: in, out
	)

	c.llmCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_usd_total",
			Help:      "Total LLM cost in USD",
		},
		[]string{"provider"},
	)

	c.breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per provider (0=CLOSED, 1=HALF_OPEN, 2=OPEN)",
		},
		[]string{"provider"},
	)

	c.dlqDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dlq_depth",
			Help:      "Number of unresolved dead-letter entries per stage",
		},
		[]string{"stage"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordEmailProcessed tallies one terminal state for a processed
// email ("validated", "failed", or "skipped").
func (c *Collector) RecordEmailProcessed(state string) {
	c.emailsProcessedTotal.WithLabelValues(state).Inc()
}

// RecordRun observes one completed run's duration and status.
func (c *Collector) RecordRun(status string, duration time.Duration) {
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordLLMRequest records one extraction attempt against a provider.
func (c *Collector) RecordLLMRequest(provider, status string, duration time.Duration, inTokens, outTokens int64, costUSD float64) {
	c.llmRequestsTotal.WithLabelValues(provider, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, "in").Add(float64(inTokens))
	c.llmTokensUsed.WithLabelValues(provider, "out").Add(float64(outTokens))
	c.llmCost.WithLabelValues(provider).Add(costUSD)
}

// SetBreakerState publishes the current breaker state for provider.
func (c *Collector) SetBreakerState(provider string, state string) {
	var v float64
	switch state {
	case "HALF_OPEN":
		v = 1
	case "OPEN":
		v = 2
	default:
		v = 0
	}
	c.breakerState.WithLabelValues(provider).Set(v)
}

// SetDLQDepth publishes the current unresolved DLQ count for stage.
func (c *Collector) SetDLQDepth(stage string, depth int) {
	c.dlqDepth.WithLabelValues(stage).Set(float64(depth))
}
