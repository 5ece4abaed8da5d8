package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/persistence"
	"github.com/limmutable/collabiq/internal/types"
)

func TestAllow_DefaultsToTrueForUnknownProvider(t *testing.T) {
	tr := New(t.TempDir()+"/health.json", zap.NewNop())
	assert.True(t, tr.Allow("claude"))
}

func TestRecordFailure_EventuallyOpensBreaker(t *testing.T) {
	tr := New(t.TempDir()+"/health.json", zap.NewNop())
	for i := 0; i < 10; i++ {
		tr.RecordFailure("claude", errors.New("boom"))
	}
	assert.False(t, tr.Allow("claude"))
	assert.Equal(t, types.StateOpen, tr.Snapshot()["claude"].State)
}

func TestSecretsProvider_UsesTighterThreshold(t *testing.T) {
	tr := New(t.TempDir()+"/health.json", zap.NewNop())
	for i := 0; i < 3; i++ {
		tr.RecordFailure("secrets", errors.New("boom"))
	}
	assert.False(t, tr.Allow("secrets"))
}

func TestLoad_ReopensBreakerThatWasOpenAtShutdown(t *testing.T) {
	path := t.TempDir() + "/health.json"
	tr := New(path, zap.NewNop())
	for i := 0; i < 10; i++ {
		tr.RecordFailure("claude", errors.New("boom"))
	}
	assert.Equal(t, types.StateOpen, tr.Snapshot()["claude"].State)

	reloaded := New(path, zap.NewNop())
	reloaded.Load()
	assert.False(t, reloaded.Allow("claude"))
	assert.Equal(t, types.StateOpen, reloaded.Snapshot()["claude"].State)
}

func TestRecordSuccess_PersistsLatency(t *testing.T) {
	path := t.TempDir() + "/health.json"
	tr := New(path, zap.NewNop())
	tr.RecordSuccess("gemini", 100_000_000)
	snap := tr.Snapshot()["gemini"]
	assert.Equal(t, types.StateClosed, snap.State)

	var persisted map[string]types.ProviderHealth
	persistence.LoadOrDefault(zap.NewNop(), path, &persisted)
	assert.Equal(t, float64(100), persisted["gemini"].AvgResponseMs)
}
