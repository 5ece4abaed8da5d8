// Package xerrors defines the classified error type every adapter and
// external port returns: a single error carrying the retry taxonomy
// (Transient/Permanent/Critical) plus enough structured context for
// the RetryExecutor and Pipeline Controller to act without string
// matching.
package xerrors

import (
	"fmt"

	"github.com/limmutable/collabiq/internal/types"
)

// Error is a structured, classified error. It is the only error type
// components in this module are expected to branch on.
type Error struct {
	Class      types.ErrorClassification
	Message    string
	Provider   string
	Stage      string
	HTTPStatus int
	RetryAfter int // seconds; 0 means no hint
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Class, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a classified error.
func New(class types.ErrorClassification, message string) *Error {
	return &Error{Class: class, Message: message}
}

// Transient wraps cause as a retryable error.
func Transient(message string, cause error) *Error {
	return &Error{Class: types.ClassTransient, Message: message, Cause: cause}
}

// Permanent wraps cause as a non-retryable error.
func Permanent(message string, cause error) *Error {
	return &Error{Class: types.ClassPermanent, Message: message, Cause: cause}
}

// Critical wraps cause as a fatal, circuit-breaking error.
func Critical(message string, cause error) *Error {
	return &Error{Class: types.ClassCritical, Message: message, Cause: cause}
}

// WithProvider sets the originating provider/service name.
func (e *Error) WithProvider(name string) *Error {
	e.Provider = name
	return e
}

// WithStage sets the pipeline stage the error occurred in.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// WithHTTPStatus sets the originating HTTP status, if any.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryAfter records a Retry-After hint in seconds.
func (e *Error) WithRetryAfter(seconds int) *Error {
	e.RetryAfter = seconds
	return e
}

// ClassOf extracts the classification from err, defaulting to
// Permanent for unclassified errors so unknown failures never retry
// silently forever.
func ClassOf(err error) types.ErrorClassification {
	var ce *Error
	if As(err, &ce) {
		return ce.Class
	}
	return types.ClassPermanent
}

// RetryAfterOf extracts a Retry-After hint in seconds, or 0 if absent.
func RetryAfterOf(err error) int {
	var ce *Error
	if As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}

// As is a thin wrapper around errors.As kept local to avoid importing
// the standard errors package name inside call sites that also use a
// local identifier named errors.
func As(err error, target **Error) bool {
	for err != nil {
		if ce, ok := err.(*Error); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// SeverityFor maps a classification plus a stage to the operator
// severity used in ErrorRecords and DLQ entries, per spec §7: auth and
// config failures are Critical; validated-incorrect records are High;
// ordinary per-email failures are Medium.
func SeverityFor(class types.ErrorClassification, stage string) types.Severity {
	switch class {
	case types.ClassCritical:
		return types.SeverityCritical
	}
	if stage == "validate" {
		return types.SeverityHigh
	}
	return types.SeverityMedium
}
