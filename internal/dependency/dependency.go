// Package dependency describes the upstream jobs a waiter blocks on.
package dependency

import (
	"fmt"
	"time"
)

// DefaultTimeout applies to records that omit a timeout.
const DefaultTimeout = 60 * time.Minute

// MaxTimeout bounds a single dependency wait.
const MaxTimeout = 24 * time.Hour

// Spec is one upstream job to wait for.
type Spec struct {
	Name    string
	Timeout time.Duration
}

// ArtifactName returns the run-scoped name of the dependency's result artifact.
func (s Spec) ArtifactName(runID string) string {
	return ArtifactName(s.Name, runID)
}

// ArtifactName returns the run-scoped artifact name for a dependency.
// The run identifier keeps names unique across concurrent runs.
func ArtifactName(name, runID string) string {
	return fmt.Sprintf("result-%s-%s", name, runID)
}

// Deadline returns the wall-clock deadline for a wait starting at start.
func (s Spec) Deadline(start time.Time) time.Time {
	return start.Add(s.Timeout)
}
