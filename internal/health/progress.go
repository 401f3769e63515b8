// Package health reports the progress of a running wait over HTTP, for
// liveness probes and for people watching a long wait.
package health

import (
	"context"
	"depwait/internal/waiter"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Run states.
const (
	StatusWaiting  = "waiting"
	StatusFinished = "finished"
)

// DependencyStatus is the progress of one dependency.
type DependencyStatus struct {
	Name     string `json:"dependency"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Response is the body of the status endpoint.
type Response struct {
	Status         string             `json:"status"`
	Repository     string             `json:"repository"`
	RunID          string             `json:"runId"`
	ElapsedSeconds float64            `json:"elapsedSeconds"`
	Total          int                `json:"total"`
	Resolved       int                `json:"resolved"`
	ExitCode       *int               `json:"exitCode,omitempty"`
	Dependencies   []DependencyStatus `json:"dependencies"`
}

// Tracker follows a wait as dependencies resolve. It implements
// waiter.Listener and is safe for concurrent use.
type Tracker struct {
	repository string
	runID      string
	started    time.Time

	mu       sync.RWMutex
	deps     []DependencyStatus
	resolved int
	exitCode *int
}

var _ waiter.Listener = (*Tracker)(nil)

// NewTracker creates a tracker for the named dependencies, all pending.
func NewTracker(repository, runID string, names []string) *Tracker {
	deps := make([]DependencyStatus, len(names))
	for i, name := range names {
		deps[i] = DependencyStatus{Name: name, Status: "pending"}
	}
	return &Tracker{
		repository: repository,
		runID:      runID,
		started:    time.Now(),
		deps:       deps,
	}
}

// DependencyResolved implements waiter.Listener.
func (t *Tracker) DependencyResolved(_ context.Context, r waiter.DependencyResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.deps {
		if t.deps[i].Name != r.Name {
			continue
		}
		t.deps[i].Status = r.Status
		t.deps[i].Attempts = r.Attempts
		if r.Err != nil {
			t.deps[i].Message = r.Err.Error()
		}
		t.resolved++
		return
	}
}

// Finish records the exit code of the run.
func (t *Tracker) Finish(exitCode int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exitCode = &exitCode
}

// Snapshot returns the current progress.
func (t *Tracker) Snapshot() *Response {
	t.mu.RLock()
	defer t.mu.RUnlock()

	resp := &Response{
		Status:         StatusWaiting,
		Repository:     t.repository,
		RunID:          t.runID,
		ElapsedSeconds: time.Since(t.started).Seconds(),
		Total:          len(t.deps),
		Resolved:       t.resolved,
		Dependencies:   append([]DependencyStatus(nil), t.deps...),
	}
	if t.exitCode != nil {
		code := *t.exitCode
		resp.Status = StatusFinished
		resp.ExitCode = &code
	}
	return resp
}

// Handler serves GET /healthz (liveness) and GET /status (progress).
func (t *Tracker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, t.Snapshot())
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	_ = json.NewEncoder(w).Encode(v)
}
