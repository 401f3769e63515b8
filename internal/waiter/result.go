package waiter

import (
	"depwait/internal/apperrors"
	"time"
)

// StatusNotEvaluated marks dependencies after the first failing one.
const StatusNotEvaluated = "not_evaluated"

// DependencyResult is the outcome of waiting for one dependency.
type DependencyResult struct {
	Name     string        `json:"dependency"`
	Artifact string        `json:"artifact"`
	Status   string        `json:"status"`
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
	Err      error         `json:"-"`
}

// Satisfied reports whether the dependency passed.
func (r DependencyResult) Satisfied() bool {
	return r.Err == nil && r.Status == apperrors.Outcome(nil)
}

// Report summarizes a Run.
type Report struct {
	Repository string             `json:"repository"`
	RunID      string             `json:"runId"`
	Started    time.Time          `json:"started"`
	Finished   time.Time          `json:"finished"`
	Results    []DependencyResult `json:"results"`
}

// Counts returns the number of dependencies per status.
func (r *Report) Counts() map[string]int {
	counts := make(map[string]int, len(r.Results))
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}
