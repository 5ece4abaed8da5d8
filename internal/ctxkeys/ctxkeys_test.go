package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithRunID_RoundTrips(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	id, ok := RunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-1", id)
}

func TestRunID_AbsentReturnsFalse(t *testing.T) {
	_, ok := RunID(context.Background())
	assert.False(t, ok)
}

func TestWithEmailID_RoundTrips(t *testing.T) {
	ctx := WithEmailID(context.Background(), "email-1")
	id, ok := EmailID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "email-1", id)
}

func TestWithStage_RoundTrips(t *testing.T) {
	ctx := WithStage(context.Background(), "extract")
	stage, ok := Stage(ctx)
	assert.True(t, ok)
	assert.Equal(t, "extract", stage)
}

func TestKeys_ComposeIndependently(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithEmailID(ctx, "email-1")
	ctx = WithStage(ctx, "link")

	runID, _ := RunID(ctx)
	emailID, _ := EmailID(ctx)
	stage, _ := Stage(ctx)
	assert.Equal(t, "run-1", runID)
	assert.Equal(t, "email-1", emailID)
	assert.Equal(t, "link", stage)
}
