package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/limmutable/collabiq/internal/types"
)

func TestClassOf_ExtractsClassificationFromWrappedError(t *testing.T) {
	base := Transient("rate limited", errors.New("429"))
	wrapped := fmt.Errorf("attempt 1 failed: %w", base)
	assert.Equal(t, types.ClassTransient, ClassOf(wrapped))
}

func TestClassOf_DefaultsToPermanentForUnclassifiedError(t *testing.T) {
	assert.Equal(t, types.ClassPermanent, ClassOf(errors.New("plain error")))
}

func TestRetryAfterOf_ExtractsHintFromWrappedError(t *testing.T) {
	base := Transient("rate limited", nil).WithRetryAfter(30)
	wrapped := fmt.Errorf("wrapped: %w", base)
	assert.Equal(t, 30, RetryAfterOf(wrapped))
}

func TestRetryAfterOf_ZeroWhenAbsent(t *testing.T) {
	assert.Equal(t, 0, RetryAfterOf(errors.New("plain")))
}

func TestError_MessageIncludesCause(t *testing.T) {
	err := Transient("call failed", errors.New("connection reset"))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Contains(t, err.Error(), "call failed")
}

func TestError_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Permanent("bad request", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestSeverityFor_CriticalClassIsAlwaysCritical(t *testing.T) {
	assert.Equal(t, types.SeverityCritical, SeverityFor(types.ClassCritical, "extract"))
	assert.Equal(t, types.SeverityCritical, SeverityFor(types.ClassCritical, "validate"))
}

func TestSeverityFor_ValidateStageIsHigh(t *testing.T) {
	assert.Equal(t, types.SeverityHigh, SeverityFor(types.ClassPermanent, "validate"))
}

func TestSeverityFor_OtherStagesAreMedium(t *testing.T) {
	assert.Equal(t, types.SeverityMedium, SeverityFor(types.ClassTransient, "extract"))
	assert.Equal(t, types.SeverityMedium, SeverityFor(types.ClassPermanent, "link"))
}

func TestWithProviderStageHTTPStatus_SetFieldsFluently(t *testing.T) {
	err := Permanent("bad request", nil).WithProvider("claude").WithStage("extract").WithHTTPStatus(400)
	assert.Equal(t, "claude", err.Provider)
	assert.Equal(t, "extract", err.Stage)
	assert.Equal(t, 400, err.HTTPStatus)
}
