// Package orchestrator implements the LLMOrchestrator: it composes a
// pluggable Strategy with the RetryExecutor, CircuitBreaker, and the
// health/cost/quality trackers behind the single extract() call spec
// §4.7 describes. Grounded on the teacher's llm/resilient_provider.go
// decorator (retry+breaker+idempotency composed around a Provider) and
// llm/factory/factory.go's construction wiring; the teacher's
// weighted-random router (llm/router/router.go) is not reused — this
// orchestrator's routing is the deterministic, quality-ranked scheme
// spec §4.5/§4.7 require.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/breaker"
	"github.com/limmutable/collabiq/internal/cost"
	"github.com/limmutable/collabiq/internal/health"
	"github.com/limmutable/collabiq/internal/providers"
	"github.com/limmutable/collabiq/internal/quality"
	"github.com/limmutable/collabiq/internal/retry"
	"github.com/limmutable/collabiq/internal/types"
	"github.com/limmutable/collabiq/internal/xerrors"
)

// Strategy selects and invokes one or more providers for a single
// extraction request.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, o *Orchestrator, cleanedText, emailID string) (types.ExtractedEntities, error)
}

// Orchestrator is the single entry point for LLM extraction, binding
// a Strategy to the shared trackers and every configured provider.
type Orchestrator struct {
	Providers      map[string]providers.Adapter
	Priority       []string // configured fallback order
	QualityRouting bool
	Strategy       Strategy
	RetryCfg       retry.Config

	Health  *health.Tracker
	Cost    *cost.Tracker
	Quality *quality.Tracker

	retryExec *retry.Executor
	logger    *zap.Logger
}

// New constructs an Orchestrator.
func New(
	adapters map[string]providers.Adapter,
	priority []string,
	strategy Strategy,
	h *health.Tracker,
	c *cost.Tracker,
	q *quality.Tracker,
	retryCfg retry.Config,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		Providers: adapters,
		Priority:  priority,
		Strategy:  strategy,
		RetryCfg:  retryCfg,
		Health:    h,
		Cost:      c,
		Quality:   q,
		retryExec: retry.New(logger),
		logger:    logger,
	}
}

// Extract runs the configured strategy for one CleanedMessage body.
func (o *Orchestrator) Extract(ctx context.Context, cleanedText, emailID string) (types.ExtractedEntities, error) {
	return o.Strategy.Extract(ctx, o, cleanedText, emailID)
}

// candidateOrder returns the provider attempt order for Failover: the
// quality-selected top provider first (when quality routing is
// enabled and a winner exists), then the configured priority order
// minus that top pick.
func (o *Orchestrator) candidateOrder() []string {
	if !o.QualityRouting {
		return o.Priority
	}
	top, ok := o.Quality.SelectByQuality(o.Priority)
	if !ok {
		return o.Priority
	}
	order := []string{top}
	for _, name := range o.Priority {
		if name != top {
			order = append(order, name)
		}
	}
	return order
}

// attempt runs one provider under its breaker and retry policy,
// recording health/cost/quality on success and health on terminal
// failure. It never retries across providers; internal/retry.Executor
// owns per-provider retry.
func (o *Orchestrator) attempt(ctx context.Context, name string, cleanedText, emailID string) (types.ExtractedEntities, error) {
	adapter, ok := o.Providers[name]
	if !ok {
		return types.ExtractedEntities{}, xerrors.Permanent("unconfigured provider: "+name, nil)
	}
	if !o.Health.Allow(name) {
		return types.ExtractedEntities{}, &breaker.ErrOpen{Service: name}
	}

	cfg := o.RetryCfg
	userOnRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		// Each OnRetry call reports a sub-attempt that already failed
		// transiently; record it so health.error_count reflects every
		// attempt, not just the provider-level outcome (§4.7 step 3 /
		// scenario S2: "claude returns 429 twice, then 200" -> error_count += 2).
		o.Health.RecordFailure(name, err)
		if userOnRetry != nil {
			userOnRetry(attempt, err, delay)
		}
	}

	start := time.Now()
	result, err := o.retryExec.Execute(ctx, cfg, func(ctx context.Context) (any, error) {
		entities, usage, err := adapter.Extract(ctx, cleanedText, emailID)
		if err != nil {
			return nil, err
		}
		return extractResult{entities: entities, usage: usage}, nil
	})
	latency := time.Since(start)

	if err != nil {
		o.Health.RecordFailure(name, err)
		return types.ExtractedEntities{}, err
	}

	r := result.(extractResult)
	o.Health.RecordSuccess(name, latency)
	costSnap := o.Cost.RecordUsage(name, r.usage)
	o.Quality.SetAvgCostPerCall(name, costSnap.AvgCostPerCall)
	// Quality is recorded at successful-extraction time per §4.7 step
	// 3; "validation" here is the adapter's own structured-output
	// validation (it already succeeded, or attempt would have
	// returned a Permanent parse error above). The Pipeline
	// Controller's later round-trip validation stage does not revise
	// this tracker entry; it only affects DLQ routing.
	o.Quality.RecordExtraction(name, r.entities, true)
	return r.entities, nil
}

type extractResult struct {
	entities types.ExtractedEntities
	usage    types.Usage
}
