package notify

import (
	"depwait/internal/waiter"
	"depwait/pkg/cloudevent"
	"slices"
)

// Event types for dependency wait callbacks
const (
	EventTypeDependency = "depwait.dependency.resolved"
	EventTypeExit       = "depwait.run.exit"
)

// FilteredEvents returns true if the event type should be sent based on the filter.
// If the filter is empty, all events are allowed.
func FilteredEvents(eventType string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	return slices.Contains(filter, eventType)
}

// EventBuilder builds CloudEvents for one depwait run.
type EventBuilder struct {
	source     string
	subject    string
	repository string
	runID      string
}

// NewEventBuilder creates a new EventBuilder. The subject is repository/runID.
func NewEventBuilder(source, repository, runID string) *EventBuilder {
	return &EventBuilder{
		source:     source,
		subject:    repository + "/" + runID,
		repository: repository,
		runID:      runID,
	}
}

// Build creates a new CloudEvent with the given type and data.
func (b *EventBuilder) Build(eventType string, data map[string]any) *cloudevent.CloudEvent {
	data["repository"] = b.repository
	data["runId"] = b.runID
	return cloudevent.New(eventType, b.source, b.subject, data)
}

// BuildDependencyEvent creates an event for a resolved dependency.
func (b *EventBuilder) BuildDependencyEvent(r waiter.DependencyResult) *cloudevent.CloudEvent {
	data := map[string]any{
		"dependency":     r.Name,
		"artifact":       r.Artifact,
		"status":         r.Status,
		"attempts":       r.Attempts,
		"elapsedSeconds": r.Elapsed.Seconds(),
	}
	if r.Err != nil {
		data["error"] = r.Err.Error()
	}
	return b.Build(EventTypeDependency, data)
}

// BuildExitEvent creates the final event of a run.
func (b *EventBuilder) BuildExitEvent(exitCode int, report *waiter.Report, err error) *cloudevent.CloudEvent {
	data := map[string]any{
		"exitCode": exitCode,
	}
	if report != nil {
		statuses := make(map[string]string, len(report.Results))
		for _, r := range report.Results {
			statuses[r.Name] = r.Status
		}
		data["dependencies"] = statuses
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return b.Build(EventTypeExit, data)
}
