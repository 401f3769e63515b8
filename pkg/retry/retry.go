// Package retry provides retry policies built on github.com/cenkalti/backoff.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial    time.Duration // default: 100ms
	Max        time.Duration // default: 5s
	MaxRetries int           // retries after the first attempt; 0 means unlimited
}

// Exponential calculates exponential backoff for a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*2, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := 100 * time.Millisecond
	maxBackoff := 5 * time.Second
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxBackoff = cfg.Max
		}
	}

	if attempt < 1 {
		return initial
	}
	d := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if d > float64(maxBackoff) {
		d = float64(maxBackoff)
	}
	return time.Duration(d)
}

// Constant returns a policy that waits exactly interval between attempts
// and stops once ctx is done. The interval never grows.
func Constant(ctx context.Context, interval time.Duration) backoff.BackOffContext {
	return backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
}

// NewExponential returns a policy following the Exponential schedule,
// giving up after cfg.MaxRetries retries or once ctx is done.
func NewExponential(ctx context.Context, cfg Config) backoff.BackOffContext {
	return backoff.WithContext(&schedule{cfg: cfg}, ctx)
}

// schedule adapts Exponential to the backoff.BackOff interface.
type schedule struct {
	cfg     Config
	attempt int
}

func (s *schedule) NextBackOff() time.Duration {
	s.attempt++
	if s.cfg.MaxRetries > 0 && s.attempt > s.cfg.MaxRetries {
		return backoff.Stop
	}
	return Exponential(s.attempt, &s.cfg)
}

func (s *schedule) Reset() {
	s.attempt = 0
}
