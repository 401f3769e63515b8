package apperrors

import (
	"context"
	"errors"
)

// Process exit codes.
const (
	ExitSuccess = 0
	ExitFailure = 1
	// ExitNeutral is the conventional "neither success nor failure" status
	// (EX_CONFIG) used to mark a job skipped because an upstream job failed.
	ExitNeutral = 78
)

// ExitCode maps an error to the process exit status.
// Upstream failures map to skipCode; every other error is a hard failure.
func ExitCode(err error, skipCode int) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrUpstreamFailed):
		if skipCode <= 0 {
			return ExitNeutral
		}
		return skipCode
	default:
		return ExitFailure
	}
}

// Outcome returns a short label for err, used in logs, metrics and events.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "satisfied"
	case errors.Is(err, ErrUpstreamFailed):
		return "upstream_failed"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrArtifactMissing):
		return "artifact_missing"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
