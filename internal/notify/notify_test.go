package notify

import (
	"context"
	"depwait/internal/apperrors"
	"depwait/internal/config"
	"depwait/internal/waiter"
	"depwait/pkg/cloudevent"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type callbackRecorder struct {
	mu     sync.Mutex
	events []cloudevent.CloudEvent
	sigs   []string
}

func (c *callbackRecorder) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event cloudevent.CloudEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Errorf("invalid event body: %v", err)
		}
		c.mu.Lock()
		c.events = append(c.events, event)
		c.sigs = append(c.sigs, r.Header.Get("X-Signature-256"))
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
}

func (c *callbackRecorder) snapshot() ([]cloudevent.CloudEvent, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cloudevent.CloudEvent(nil), c.events...), append([]string(nil), c.sigs...)
}

func notifierConfig(url string) *config.Config {
	return &config.Config{
		Repository:      "acme/widgets",
		RunID:           "77",
		CallbackURL:     url,
		CallbackKey:     "secret",
		CallbackTimeout: time.Second,
	}
}

func TestNotifier_DependencyResolved(t *testing.T) {
	t.Parallel()
	rec := &callbackRecorder{}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	n := New(notifierConfig(server.URL))
	n.DependencyResolved(context.Background(), waiter.DependencyResult{
		Name:     "build",
		Artifact: "result-build-77",
		Status:   "upstream_failed",
		Attempts: 3,
		Elapsed:  90 * time.Second,
		Err:      apperrors.UpstreamFailed("build", "FAILURE"),
	})
	closeNotifier(t, n)

	events, sigs := rec.snapshot()
	if len(events) != 1 {
		t.Fatalf("received %d events, want 1", len(events))
	}
	e := events[0]
	if e.Type != EventTypeDependency {
		t.Errorf("Type = %q", e.Type)
	}
	if e.Subject != "acme/widgets/77" {
		t.Errorf("Subject = %q", e.Subject)
	}
	if e.Data["dependency"] != "build" || e.Data["status"] != "upstream_failed" || e.Data["runId"] != "77" {
		t.Errorf("unexpected data: %v", e.Data)
	}
	if e.Data["error"] != "dependency build reported FAILURE" {
		t.Errorf("error = %v", e.Data["error"])
	}
	if sigs[0] == "" {
		t.Error("events should be signed when a key is configured")
	}
}

func TestNotifier_RunExit(t *testing.T) {
	t.Parallel()
	rec := &callbackRecorder{}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	report := &waiter.Report{Results: []waiter.DependencyResult{
		{Name: "build", Status: "satisfied"},
		{Name: "test", Status: waiter.StatusNotEvaluated},
	}}
	n := New(notifierConfig(server.URL))
	n.RunExit(78, report, apperrors.UpstreamFailed("lint", "FAILURE"))
	closeNotifier(t, n)

	events, _ := rec.snapshot()
	if len(events) != 1 {
		t.Fatalf("received %d events, want 1", len(events))
	}
	data := events[0].Data
	if events[0].Type != EventTypeExit {
		t.Errorf("Type = %q", events[0].Type)
	}
	if data["exitCode"] != float64(78) {
		t.Errorf("exitCode = %v", data["exitCode"])
	}
	deps, ok := data["dependencies"].(map[string]any)
	if !ok || deps["test"] != waiter.StatusNotEvaluated {
		t.Errorf("dependencies = %v", data["dependencies"])
	}
}

func TestNotifier_EventFilter(t *testing.T) {
	t.Parallel()
	rec := &callbackRecorder{}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	cfg := notifierConfig(server.URL)
	cfg.CallbackEvents = EventTypeExit
	n := New(cfg)

	n.DependencyResolved(context.Background(), waiter.DependencyResult{Name: "build", Status: "satisfied"})
	n.RunExit(0, nil, nil)
	closeNotifier(t, n)

	events, _ := rec.snapshot()
	if len(events) != 1 || events[0].Type != EventTypeExit {
		t.Errorf("expected only the exit event, got %d events", len(events))
	}
}

func TestNotifier_NoURL(t *testing.T) {
	t.Parallel()
	n := New(notifierConfig(""))

	// Should not panic or block
	n.DependencyResolved(context.Background(), waiter.DependencyResult{Name: "build"})
	n.RunExit(0, nil, nil)
	closeNotifier(t, n)

	var nilNotifier *Notifier
	nilNotifier.DependencyResolved(context.Background(), waiter.DependencyResult{Name: "build"})
	nilNotifier.RunExit(1, nil, nil)
	closeNotifier(t, nilNotifier)
}

func TestNotifier_DeliveryFailureIsIgnored(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := New(notifierConfig(server.URL))
	n.RunExit(1, nil, nil)
	closeNotifier(t, n)

	if stats := n.Stats(); stats.Failed != 1 || stats.Delivered != 0 {
		t.Errorf("stats = %+v, want one failed delivery", stats)
	}
}

func TestNotifier_BreakerDropsAfterRepeatedFailures(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	n := New(notifierConfig(server.URL))
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		n.DependencyResolved(context.Background(), waiter.DependencyResult{Name: name, Status: "satisfied"})
	}
	closeNotifier(t, n)

	stats := n.Stats()
	if stats.Failed != 3 || stats.Dropped != 2 {
		t.Errorf("stats = %+v, want 3 failed and 2 dropped", stats)
	}
	if hits.Load() != 3 {
		t.Errorf("endpoint called %d times, want 3", hits.Load())
	}
}

func TestNotifier_DropsAfterClose(t *testing.T) {
	t.Parallel()
	rec := &callbackRecorder{}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	n := New(notifierConfig(server.URL))
	closeNotifier(t, n)
	n.RunExit(0, nil, nil)

	if n.Stats().Dropped != 1 {
		t.Errorf("event sent after Close should be dropped")
	}
	if events, _ := rec.snapshot(); len(events) != 0 {
		t.Errorf("received %d events after Close", len(events))
	}
}

func closeNotifier(t *testing.T, n *Notifier) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestFilteredEvents(t *testing.T) {
	t.Parallel()
	if !FilteredEvents(EventTypeExit, nil) {
		t.Error("empty filter should allow all events")
	}
	if FilteredEvents(EventTypeDependency, []string{EventTypeExit}) {
		t.Error("filter should exclude unlisted events")
	}
}
