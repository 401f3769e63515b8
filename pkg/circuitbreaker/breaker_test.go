package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg Config) (*Breaker, *clock) {
	c := &clock{now: time.Unix(1700000000, 0)}
	b := New(cfg)
	b.now = c.Now
	return b, c
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero", cfg: Config{}},
		{name: "negative", cfg: Config{Threshold: -1, Cooldown: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := New(tt.cfg)
			if b.config != DefaultConfig() {
				t.Errorf("config = %+v, want defaults %+v", b.config, DefaultConfig())
			}
		})
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{Threshold: 3, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		b.RecordFailure()
	}
	if b.State() != Closed || !b.Allow() {
		t.Fatal("breaker should stay closed below the threshold")
	}

	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("State = %v, want open", b.State())
	}
	if b.Allow() {
		t.Error("open breaker should reject calls")
	}
	if b.Failures() != 3 {
		t.Errorf("Failures = %d, want 3", b.Failures())
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(Config{Threshold: 2})

	b.RecordFailure()
	b.Record(nil)
	b.RecordFailure()

	if b.State() != Closed {
		t.Error("failures are only counted when consecutive")
	}
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	t.Parallel()
	b, c := newTestBreaker(Config{Threshold: 1, Cooldown: time.Minute})

	b.Record(errors.New("boom"))
	c.Advance(59 * time.Second)
	if b.Allow() {
		t.Fatal("breaker should stay open during cooldown")
	}

	c.Advance(time.Second)
	if !b.Allow() {
		t.Fatal("first call after cooldown should be allowed")
	}
	if b.State() != HalfOpen {
		t.Errorf("State = %v, want half-open", b.State())
	}
	if b.Allow() {
		t.Error("only one probe should be allowed while half-open")
	}

	b.RecordSuccess()
	if b.State() != Closed || !b.Allow() {
		t.Error("successful probe should close the breaker")
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()
	b, c := newTestBreaker(Config{Threshold: 5, Cooldown: time.Second})

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	c.Advance(2 * time.Second)
	if !b.Allow() {
		t.Fatal("probe should be allowed after cooldown")
	}

	b.Record(errors.New("still down"))
	if b.State() != Open {
		t.Fatalf("State = %v, want open", b.State())
	}
	if b.Allow() {
		t.Error("reopened breaker should wait a full cooldown")
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state State
		want  string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestBreaker_Concurrent(t *testing.T) {
	t.Parallel()
	b := New(Config{Threshold: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if b.Allow() {
					b.RecordFailure()
				}
			}
		}()
	}
	wg.Wait()

	if b.Failures() != 500 {
		t.Errorf("Failures = %d, want 500", b.Failures())
	}
}
