// Package testutil provides polling helpers for tests that observe a
// running wait from the outside.
package testutil

import (
	"io"
	"net/http"
	"testing"
	"time"
)

// WaitOptions configures the polling helpers.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// WaitOption is a functional option for the polling helpers.
type WaitOption func(*WaitOptions)

// WithTimeout sets the maximum wait time (default: 10s).
func WithTimeout(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Timeout = d
	}
}

// WithInterval sets the polling interval (default: 20ms).
func WithInterval(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Interval = d
	}
}

func options(opts []WaitOption) WaitOptions {
	o := WaitOptions{
		Timeout:  10 * time.Second,
		Interval: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WaitFor checks condition immediately and then every interval until it
// returns true or the timeout passes. It reports whether condition was met.
func WaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) bool {
	tb.Helper()
	o := options(opts)

	timeout := time.NewTimer(o.Timeout)
	defer timeout.Stop()
	ticker := time.NewTicker(o.Interval)
	defer ticker.Stop()

	for {
		if condition() {
			return true
		}
		select {
		case <-timeout.C:
			return false
		case <-ticker.C:
		}
	}
}

// MustWaitFor is WaitFor that fails the test on timeout.
func MustWaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, condition, opts...) {
		tb.Fatal("timed out waiting for condition")
	}
}

// MustGet polls url until it answers 200 OK and returns the body.
func MustGet(tb testing.TB, url string, opts ...WaitOption) string {
	tb.Helper()

	var body string
	ok := WaitFor(tb, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(data)
		return true
	}, opts...)

	if !ok {
		tb.Fatalf("timed out waiting for %s", url)
	}
	return body
}
