package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/dlq"
	"github.com/limmutable/collabiq/internal/orchestrator"
	"github.com/limmutable/collabiq/internal/types"
)

func TestStrategyFor_MapsNamesToStrategies(t *testing.T) {
	assert.IsType(t, orchestrator.ConsensusStrategy{}, strategyFor("consensus"))
	assert.IsType(t, orchestrator.BestMatchStrategy{}, strategyFor("best_match"))
	assert.IsType(t, orchestrator.AllProvidersStrategy{}, strategyFor("all_providers"))
	assert.IsType(t, orchestrator.FailoverStrategy{}, strategyFor("failover"))
	assert.IsType(t, orchestrator.FailoverStrategy{}, strategyFor("unknown"))
}

func TestDefaultPrices_IncludesAllThreeProviders(t *testing.T) {
	prices := defaultPrices()
	assert.Contains(t, prices, "claude")
	assert.Contains(t, prices, "openai")
	assert.Contains(t, prices, "gemini")
	assert.Equal(t, 0.0, prices["gemini"].In)
	assert.Equal(t, 0.0, prices["gemini"].Out)
}

func TestFindEntry_LocatesMatchingEmailAndStage(t *testing.T) {
	store := dlq.New(t.TempDir(), zap.NewNop())
	assert.NoError(t, store.Append("email-1", "extract", []byte(`{}`), types.DLQErrorInfo{Message: "boom"}, types.SeverityMedium))

	a := &app{dlq: store}
	entry, ok := findEntry(a, "email-1", "extract")
	assert.True(t, ok)
	assert.Equal(t, "email-1", entry.EmailID)
	assert.Equal(t, "extract", entry.Stage)
}

func TestFindEntry_MissReturnsFalse(t *testing.T) {
	store := dlq.New(t.TempDir(), zap.NewNop())
	a := &app{dlq: store}
	_, ok := findEntry(a, "missing", "extract")
	assert.False(t, ok)
}
