package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/types"
)

func TestRecordUsage_AccumulatesTokensAndCost(t *testing.T) {
	prices := map[string]PerMillionPrice{"claude": {In: 3.00, Out: 15.00}}
	tr := New(t.TempDir()+"/cost.json", prices, zap.NewNop())

	tr.RecordUsage("claude", types.Usage{InTokens: 1_000_000, OutTokens: 1_000_000})
	c := tr.RecordUsage("claude", types.Usage{InTokens: 1_000_000, OutTokens: 1_000_000})

	assert.Equal(t, int64(2), c.Calls)
	assert.Equal(t, int64(2_000_000), c.InTokens)
	assert.Equal(t, int64(2_000_000), c.OutTokens)
	assert.InDelta(t, 36.0, c.CostUSD, 1e-9)
	assert.InDelta(t, 18.0, c.AvgCostPerCall, 1e-9)
}

func TestRecordUsage_FreeProviderAccumulatesZeroCost(t *testing.T) {
	prices := map[string]PerMillionPrice{"gemini": {In: 0, Out: 0}}
	tr := New(t.TempDir()+"/cost.json", prices, zap.NewNop())

	c := tr.RecordUsage("gemini", types.Usage{InTokens: 500_000, OutTokens: 500_000})
	assert.Equal(t, float64(0), c.CostUSD)
	assert.Equal(t, float64(0), c.AvgCostPerCall)
}

// TestRecordUsage_CostNeverNegative asserts spec §8 invariant 5's cost
// bound: accumulated cost never goes below zero regardless of usage
// patterns.
func TestRecordUsage_CostNeverNegative(t *testing.T) {
	prices := map[string]PerMillionPrice{"openai": {In: 0.15, Out: 0.60}}
	tr := New(t.TempDir()+"/cost.json", prices, zap.NewNop())

	for i := 0; i < 5; i++ {
		c := tr.RecordUsage("openai", types.Usage{InTokens: 1234, OutTokens: 567})
		assert.GreaterOrEqual(t, c.CostUSD, 0.0)
	}
}

func TestLoad_RoundTripsAcrossInstances(t *testing.T) {
	path := t.TempDir() + "/cost.json"
	prices := map[string]PerMillionPrice{"claude": {In: 3.00, Out: 15.00}}
	tr := New(path, prices, zap.NewNop())
	tr.RecordUsage("claude", types.Usage{InTokens: 1000, OutTokens: 1000})

	reloaded := New(path, prices, zap.NewNop())
	reloaded.Load()
	snap := reloaded.Snapshot()["claude"]
	assert.Equal(t, int64(1), snap.Calls)
	assert.Equal(t, int64(1000), snap.InTokens)
}

func TestSnapshot_UnknownProviderHasZeroValue(t *testing.T) {
	tr := New(t.TempDir()+"/cost.json", nil, zap.NewNop())
	snap := tr.Snapshot()
	_, ok := snap["unknown"]
	assert.False(t, ok)
}
