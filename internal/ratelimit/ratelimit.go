// Package ratelimit wraps golang.org/x/time/rate into the token-bucket
// shared-resource primitive spec §5 requires for external services
// (default: knowledge-base service at 3 req/s). Grounded on the
// teacher's rate.NewLimiter construction pattern in
// cmd/agentflow/middleware.go.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter blocks callers up to a per-attempt timeout enforced by the
// caller's context; it never permits a burst beyond its configuration.
type Limiter struct {
	rl *rate.Limiter
}

// New creates a Limiter allowing ratePerSec requests per second with
// the given burst capacity.
func New(ratePerSec float64, burst int) *Limiter {
	return &Limiter{rl: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.rl.Wait(ctx)
}

// KnowledgeBaseDefault is the spec's default KB-service rate: 3 req/s,
// burst 3.
func KnowledgeBaseDefault() *Limiter {
	return New(3, 3)
}
