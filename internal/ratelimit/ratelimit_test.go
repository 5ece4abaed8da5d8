package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWait_AllowsBurstImmediately(t *testing.T) {
	l := New(5, 3)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		assert.NoError(t, l.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestWait_ThrottlesBeyondRate asserts spec §8 invariant 8: no more
// than the configured rate of calls proceeds within a one-second
// window; with burst 1 at 2 req/s, the 2nd call here must wait about
// 500ms for a new token.
func TestWait_ThrottlesBeyondRate(t *testing.T) {
	l := New(2, 1)
	ctx := context.Background()

	start := time.Now()
	assert.NoError(t, l.Wait(ctx))
	assert.NoError(t, l.Wait(ctx))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond)
}

func TestWait_RespectsContextCancellation(t *testing.T) {
	l := New(0.1, 1)
	// Drain the single burst token.
	assert.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.Error(t, err)
}

func TestKnowledgeBaseDefault_IsThreePerSecond(t *testing.T) {
	l := KnowledgeBaseDefault()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.NoError(t, l.Wait(ctx))
	}
}
