// Package circuitbreaker stops calling a failing endpoint for a while.
//
// States:
//   - Closed: calls allowed
//   - Open: threshold consecutive failures seen, calls rejected until the cooldown passes
//   - HalfOpen: cooldown passed, a single probe call is allowed
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the state of a breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds breaker settings. Zero values take the defaults.
type Config struct {
	Threshold int           // consecutive failures before opening (default: 3)
	Cooldown  time.Duration // time open before a probe is allowed (default: 1m)
}

// DefaultConfig returns the defaults used for callback delivery.
func DefaultConfig() Config {
	return Config{
		Threshold: 3,
		Cooldown:  time.Minute,
	}
}

// Breaker guards a single endpoint. It is safe for concurrent use.
type Breaker struct {
	mu       sync.Mutex
	config   Config
	state    State
	failures int
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{config: cfg, now: time.Now}
}

// Allow reports whether a call may be made now. In the half-open state
// only one caller is let through until its result is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			return false
		}
		b.state = HalfOpen
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Record updates the breaker with the result of an allowed call.
func (b *Breaker) Record(err error) {
	if err != nil {
		b.RecordFailure()
		return
	}
	b.RecordSuccess()
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failures = 0
	b.probing = false
}

// RecordFailure counts a failure. A failed probe reopens the breaker at once.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.probing = false
	if b.state == HalfOpen || b.failures >= b.config.Threshold {
		b.state = Open
		b.openedAt = b.now()
	}
}

// State returns the current state without advancing it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
