// Package apperrors provides structured waiter errors with exit code mapping.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation      = errors.New("validation error")
	ErrTimeout         = errors.New("dependency timed out")
	ErrArtifactMissing = errors.New("artifact missing")
	ErrUpstreamFailed  = errors.New("upstream failed")
	ErrInternal        = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel   error  // Wrapped sentinel for errors.Is() classification
	Message    string // Human-readable message
	Field      string // For validation errors (e.g., "runId", "dependency[0].timeout")
	Dependency string // Dependency the error belongs to, if any
	Op         string // Operation that failed (e.g., "fetch.command")
	Cause      error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// Timeout reports that a dependency's artifact never became available.
func Timeout(dependency string, timeout time.Duration, attempts int, cause error) error {
	return &Error{
		Sentinel:   ErrTimeout,
		Message:    fmt.Sprintf("dependency %s: artifact not available after %s (%d attempts)", dependency, timeout, attempts),
		Dependency: dependency,
		Cause:      cause,
	}
}

// ArtifactMissing reports a fetch that succeeded without producing the result file.
func ArtifactMissing(dependency, path string, cause error) error {
	return &Error{
		Sentinel:   ErrArtifactMissing,
		Message:    fmt.Sprintf("dependency %s: result file %s missing after download", dependency, path),
		Dependency: dependency,
		Cause:      cause,
	}
}

// UpstreamFailed reports that a dependency's result carries the failure marker.
func UpstreamFailed(dependency, marker string) error {
	return &Error{
		Sentinel:   ErrUpstreamFailed,
		Message:    fmt.Sprintf("dependency %s reported %s", dependency, marker),
		Dependency: dependency,
	}
}

// FetchAborted reports a fetch failure that retrying cannot fix,
// such as an unrenderable command template or a missing binary.
func FetchAborted(dependency string, cause error) error {
	return &Error{
		Sentinel:   ErrInternal,
		Message:    fmt.Sprintf("dependency %s: fetch aborted: %v", dependency, cause),
		Dependency: dependency,
		Op:         "fetch",
		Cause:      cause,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// DependencyOf returns the dependency name attached to err, if any.
func DependencyOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Dependency
	}
	return ""
}
