// Package cost implements the CostTracker: per-provider token and USD
// accounting with atomic persistence. Adapted from the teacher's
// llm/budget/token_budget.go atomic-counter style, simplified from its
// minute/hour/day windowed budget enforcement to the flat cumulative
// model spec §4.4 and the ProviderCost entity in spec §3 describe.
package cost

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/persistence"
	"github.com/limmutable/collabiq/internal/types"
)

// PerMillionPrice is a provider's price per million input/output
// tokens; free providers use zero for both.
type PerMillionPrice struct {
	In  float64
	Out float64
}

// Tracker owns the ProviderCost map and its persisted file.
type Tracker struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
	prices map[string]PerMillionPrice
	costs  map[string]*types.ProviderCost
}

// New creates a CostTracker. prices maps provider name to its
// per-million-token pricing.
func New(path string, prices map[string]PerMillionPrice, logger *zap.Logger) *Tracker {
	return &Tracker{
		path:   path,
		logger: logger,
		prices: prices,
		costs:  map[string]*types.ProviderCost{},
	}
}

// Load restores persisted cost state, tolerating a missing/corrupt
// file.
func (t *Tracker) Load() {
	var snap map[string]*types.ProviderCost
	persistence.LoadOrDefault(t.logger, t.path, &snap)
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, c := range snap {
		t.costs[name] = c
	}
}

// RecordUsage increments provider's counters by the given token usage,
// recomputes cost_usd and avg_cost_per_call, and persists atomically.
func (t *Tracker) RecordUsage(provider string, usage types.Usage) types.ProviderCost {
	t.mu.Lock()
	c, ok := t.costs[provider]
	if !ok {
		c = &types.ProviderCost{Name: provider}
		t.costs[provider] = c
	}
	price := t.prices[provider]

	c.Calls++
	c.InTokens += usage.InTokens
	c.OutTokens += usage.OutTokens
	c.CostUSD += float64(usage.InTokens)/1_000_000*price.In + float64(usage.OutTokens)/1_000_000*price.Out
	if c.Calls > 0 {
		c.AvgCostPerCall = c.CostUSD / float64(c.Calls)
	}
	c.UpdatedAt = time.Now()
	result := *c
	t.mu.Unlock()

	t.persist()
	return result
}

// Snapshot returns the current ProviderCost map.
func (t *Tracker) Snapshot() map[string]types.ProviderCost {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]types.ProviderCost, len(t.costs))
	for name, c := range t.costs {
		out[name] = *c
	}
	return out
}

func (t *Tracker) persist() {
	if err := persistence.WriteJSON(t.path, t.Snapshot()); err != nil {
		t.logger.Warn("failed to persist cost state", zap.Error(err))
	}
}
