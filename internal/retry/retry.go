// Package retry implements the RetryExecutor: per-service retry with
// exponential backoff and jitter, Retry-After honoring, and exception
// classification. Adapted from the teacher's backoffRetryer
// (llm/retry/backoff.go); generalized with per-attempt timeouts and
// Retry-After handling that the teacher's version lacked.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/types"
	"github.com/limmutable/collabiq/internal/xerrors"
)

// Config is the per-call retry configuration, matching spec §4.1's
// cfg shape.
type Config struct {
	MaxAttempts       int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	JitterMax         time.Duration
	PerAttemptTimeout time.Duration
	RespectRetryAfter bool
	OnRetry           func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns sane defaults for an LLM vendor call.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		BaseBackoff:       1 * time.Second,
		MaxBackoff:        30 * time.Second,
		JitterMax:         250 * time.Millisecond,
		PerAttemptTimeout: 30 * time.Second,
		RespectRetryAfter: true,
	}
}

// Op is the operation the executor retries. It must return a
// classified error (see internal/xerrors) on failure so the executor
// can decide whether to retry.
type Op func(ctx context.Context) (any, error)

// Executor runs an Op under a Config, retrying only Transient
// failures.
type Executor struct {
	logger *zap.Logger
}

// New creates a RetryExecutor.
func New(logger *zap.Logger) *Executor {
	return &Executor{logger: logger}
}

// Execute runs op, retrying per cfg. It returns the result on success.
// A Permanent/Critical error is returned as-is, without retrying; when
// every attempt fails transiently, the last error is returned wrapped
// with the attempt count.
func (e *Executor) Execute(ctx context.Context, cfg Config, op Op) (any, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := e.delayFor(cfg, attempt, lastErr)
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, lastErr, delay)
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if cfg.PerAttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.PerAttemptTimeout)
		}
		result, err := op(attemptCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if attempt > 1 {
				e.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}

		lastErr = err
		class := xerrors.ClassOf(err)
		e.logger.Debug("attempt failed",
			zap.Int("attempt", attempt),
			zap.String("classification", string(class)),
			zap.Error(err))

		if class != types.ClassTransient {
			return nil, err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}
	}

	e.logger.Warn("retries exhausted", zap.Int("attempts", cfg.MaxAttempts), zap.Error(lastErr))
	return nil, fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// delayFor computes the backoff for the given attempt: exponential
// with jitter, raised to at least any Retry-After hint on lastErr when
// cfg.RespectRetryAfter is set.
func (e *Executor) delayFor(cfg Config, attempt int, lastErr error) time.Duration {
	base := float64(cfg.BaseBackoff) * math.Pow(2, float64(attempt-2))
	if base > float64(cfg.MaxBackoff) {
		base = float64(cfg.MaxBackoff)
	}
	if cfg.JitterMax > 0 {
		base += rand.Float64() * float64(cfg.JitterMax)
	}
	delay := time.Duration(base)

	if cfg.RespectRetryAfter {
		if secs := xerrors.RetryAfterOf(lastErr); secs > 0 {
			hint := time.Duration(secs) * time.Second
			if hint > delay {
				delay = hint
			}
		}
	}
	return delay
}
