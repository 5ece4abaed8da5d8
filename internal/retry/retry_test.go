package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/xerrors"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseBackoff = 1 * time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.JitterMax = 0
	return cfg
}

func TestExecute_SucceedsFirstTry(t *testing.T) {
	exec := New(zap.NewNop())
	calls := 0
	_, err := exec.Execute(context.Background(), fastConfig(), func(ctx context.Context) (any, error) {
		calls++
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	exec := New(zap.NewNop())
	calls := 0
	result, err := exec.Execute(context.Background(), fastConfig(), func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, xerrors.Transient("rate limited", errors.New("429"))
		}
		return "done", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 3, calls)
}

// TestExecute_NoRetryOnPermanent asserts spec §8 invariant 2: a
// Permanent classification is invoked exactly once.
func TestExecute_NoRetryOnPermanent(t *testing.T) {
	exec := New(zap.NewNop())
	calls := 0
	_, err := exec.Execute(context.Background(), fastConfig(), func(ctx context.Context) (any, error) {
		calls++
		return nil, xerrors.Permanent("bad request", errors.New("400"))
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

// TestExecute_NoRetryOnCritical asserts the same for Critical.
func TestExecute_NoRetryOnCritical(t *testing.T) {
	exec := New(zap.NewNop())
	calls := 0
	_, err := exec.Execute(context.Background(), fastConfig(), func(ctx context.Context) (any, error) {
		calls++
		return nil, xerrors.Critical("auth failure", errors.New("401"))
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_ExhaustsMaxAttempts(t *testing.T) {
	exec := New(zap.NewNop())
	cfg := fastConfig()
	cfg.MaxAttempts = 3
	calls := 0
	_, err := exec.Execute(context.Background(), cfg, func(ctx context.Context) (any, error) {
		calls++
		return nil, xerrors.Transient("still failing", errors.New("503"))
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_RespectsRetryAfter(t *testing.T) {
	exec := New(zap.NewNop())
	cfg := fastConfig()
	cfg.RespectRetryAfter = true

	calls := 0
	start := time.Now()
	_, err := exec.Execute(context.Background(), cfg, func(ctx context.Context) (any, error) {
		calls++
		if calls < 2 {
			return nil, xerrors.Transient("rate limited", errors.New("429")).WithRetryAfter(1)
		}
		return "ok", nil
	})
	elapsed := time.Since(start)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 1*time.Second)
}

func TestExecute_CancelledContextStopsRetrying(t *testing.T) {
	exec := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := fastConfig()
	cfg.BaseBackoff = 50 * time.Millisecond
	calls := 0
	_, err := exec.Execute(ctx, cfg, func(ctx context.Context) (any, error) {
		calls++
		return nil, xerrors.Transient("still failing", errors.New("503"))
	})
	assert.Error(t, err)
}
