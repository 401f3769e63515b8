// Package notify delivers depwait progress to an HTTP callback as CloudEvents.
//
// Events are queued and sent by a single background worker so a slow or
// failing callback endpoint never delays the wait loop. Close drains the
// queue. After repeated delivery failures a circuit breaker drops further
// events instead of retrying each one.
package notify

import (
	"context"
	"depwait/internal/config"
	"depwait/internal/waiter"
	"depwait/pkg/circuitbreaker"
	"depwait/pkg/cloudevent"
	"depwait/pkg/retry"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// queueSize bounds the number of undelivered events.
const queueSize = 64

// Stats holds delivery counters.
type Stats struct {
	Delivered int64
	Failed    int64
	Dropped   int64
}

// Notifier sends callback events. A Notifier without a URL does nothing.
// Delivery failures are logged and never affect the run's outcome.
type Notifier struct {
	url     string
	key     string
	events  []string
	sender  *cloudevent.Sender
	builder *EventBuilder
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger

	mu     sync.Mutex
	queue  chan *cloudevent.CloudEvent
	closed bool
	done   chan struct{}

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

var _ waiter.Listener = (*Notifier)(nil)

// New creates a notifier from configuration and starts its delivery worker
// when a callback URL is configured.
func New(cfg *config.Config) *Notifier {
	var events []string
	for _, e := range strings.Split(cfg.CallbackEvents, ",") {
		if e = strings.TrimSpace(e); e != "" {
			events = append(events, e)
		}
	}

	sender := cloudevent.NewSender(cfg.CallbackTimeout, retry.Config{
		Initial:    200 * time.Millisecond,
		Max:        2 * time.Second,
		MaxRetries: 3,
	})

	n := &Notifier{
		url:     cfg.CallbackURL,
		key:     cfg.CallbackKey,
		events:  events,
		sender:  sender,
		builder: NewEventBuilder("depwait", cfg.Repository, cfg.RunID),
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:  slog.With("component", "notify"),
		done:    make(chan struct{}),
	}

	if n.url == "" {
		close(n.done)
		return n
	}
	n.queue = make(chan *cloudevent.CloudEvent, queueSize)
	go n.worker()
	return n
}

// DependencyResolved implements waiter.Listener.
func (n *Notifier) DependencyResolved(_ context.Context, r waiter.DependencyResult) {
	if !n.enabled() {
		return
	}
	n.enqueue(n.builder.BuildDependencyEvent(r))
}

// RunExit queues the final event of the run.
func (n *Notifier) RunExit(exitCode int, report *waiter.Report, err error) {
	if !n.enabled() {
		return
	}
	n.enqueue(n.builder.BuildExitEvent(exitCode, report, err))
}

// Close stops accepting events and waits until the queue is drained or ctx
// is done.
func (n *Notifier) Close(ctx context.Context) error {
	if n == nil {
		return nil
	}

	n.mu.Lock()
	if !n.closed {
		n.closed = true
		if n.queue != nil {
			close(n.queue)
		}
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		stats := n.Stats()
		if n.url != "" {
			n.logger.Info("Callback delivery finished", "delivered", stats.Delivered, "failed", stats.Failed, "dropped", stats.Dropped)
		}
		return nil
	case <-ctx.Done():
		n.logger.Warn("Callback delivery did not finish", "remaining", len(n.queue))
		return ctx.Err()
	}
}

// Stats returns the delivery counters.
func (n *Notifier) Stats() Stats {
	return Stats{
		Delivered: n.delivered.Load(),
		Failed:    n.failed.Load(),
		Dropped:   n.dropped.Load(),
	}
}

func (n *Notifier) enabled() bool {
	return n != nil && n.url != ""
}

func (n *Notifier) enqueue(event *cloudevent.CloudEvent) {
	if !FilteredEvents(event.Type, n.events) {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		n.dropped.Add(1)
		n.logger.Warn("Event dropped, notifier closed", "eventType", event.Type)
		return
	}

	select {
	case n.queue <- event:
	default:
		n.dropped.Add(1)
		n.logger.Warn("Event dropped, queue full", "eventType", event.Type)
	}
}

func (n *Notifier) worker() {
	defer close(n.done)
	for event := range n.queue {
		n.deliver(event)
	}
}

func (n *Notifier) deliver(event *cloudevent.CloudEvent) {
	if !n.breaker.Allow() {
		n.dropped.Add(1)
		n.logger.Warn("Event dropped, callback endpoint failing", "eventType", event.Type, "breaker", n.breaker.State())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := n.sender.Send(ctx, n.url, event, cloudevent.SendOptions{SigningKey: n.key})
	n.breaker.Record(err)
	if err != nil {
		n.failed.Add(1)
		n.logger.Warn("Failed to send callback event", "eventType", event.Type, "error", err)
		return
	}
	n.delivered.Add(1)
}
