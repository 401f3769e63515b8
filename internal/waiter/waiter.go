// Package waiter blocks on upstream CI jobs by polling for their result
// artifacts and gates the current job on what those artifacts report.
//
// Dependencies are processed strictly in order. For each one the waiter
// retries the fetch at a fixed interval until it succeeds or the
// dependency's timeout passes, then reads the result file and looks for the
// failure marker. The first dependency that times out, lacks a result file
// or reports failure ends the run; later dependencies are not evaluated.
package waiter

import (
	"context"
	"depwait/internal/apperrors"
	"depwait/internal/config"
	"depwait/internal/dependency"
	"depwait/internal/fetch"
	"depwait/internal/observability"
	"depwait/pkg/retry"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Listener is told about each dependency as soon as it resolves.
type Listener interface {
	DependencyResolved(ctx context.Context, result DependencyResult)
}

// Waiter waits for a fixed, ordered list of dependencies.
type Waiter struct {
	config    *config.Config
	specs     []dependency.Spec
	fetcher   fetch.Fetcher
	metrics   *observability.Metrics
	listeners []Listener
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithMetrics records fetch attempts and outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(w *Waiter) {
		w.metrics = m
	}
}

// WithListener registers a listener for resolved dependencies.
// Listeners are called in registration order.
func WithListener(l Listener) Option {
	return func(w *Waiter) {
		if l != nil {
			w.listeners = append(w.listeners, l)
		}
	}
}

// New creates a waiter. cfg must already be validated.
func New(cfg *config.Config, specs []dependency.Spec, fetcher fetch.Fetcher, opts ...Option) (*Waiter, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if err := dependency.Validate(specs); err != nil {
		return nil, err
	}

	w := &Waiter{
		config:  cfg,
		specs:   specs,
		fetcher: fetcher,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run waits for every dependency in order. It returns nil when all are
// satisfied, otherwise the first failure; the report covers every dependency.
func (w *Waiter) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		Repository: w.config.Repository,
		RunID:      w.config.RunID,
		Started:    time.Now(),
	}
	defer func() { report.Finished = time.Now() }()

	logger := slog.With("repository", w.config.Repository, "runId", w.config.RunID, "dependencies", len(w.specs))
	logger.Info("Waiting for dependencies")
	w.metrics.RecordDependencyPending(ctx, len(w.specs))

	for i, spec := range w.specs {
		result := w.waitFor(ctx, spec)
		report.Results = append(report.Results, result)

		w.metrics.RecordDependencyResolved(ctx, spec.Name, result.Status, result.Elapsed.Seconds())
		for _, l := range w.listeners {
			l.DependencyResolved(ctx, result)
		}

		if result.Err != nil {
			for _, rest := range w.specs[i+1:] {
				report.Results = append(report.Results, DependencyResult{
					Name:     rest.Name,
					Artifact: rest.ArtifactName(w.config.RunID),
					Status:   StatusNotEvaluated,
				})
				w.metrics.RecordDependencyPending(ctx, -1)
			}
			logger.Error("Dependency not satisfied, stopping", "dependency", spec.Name, "status", result.Status, "error", result.Err)
			return report, result.Err
		}
	}

	logger.Info("All dependencies satisfied")
	return report, nil
}

// waitFor fetches and inspects a single dependency.
func (w *Waiter) waitFor(ctx context.Context, spec dependency.Spec) DependencyResult {
	start := time.Now()
	result := DependencyResult{
		Name:     spec.Name,
		Artifact: spec.ArtifactName(w.config.RunID),
	}
	logger := slog.With("dependency", spec.Name, "artifact", result.Artifact)
	logger.Info("Waiting for dependency", "timeout", spec.Timeout, "deadline", spec.Deadline(start).Format(time.RFC3339))

	attempts, err := w.fetchUntilDeadline(ctx, logger, spec, result.Artifact, start)
	if err == nil {
		logger.Info("Artifact downloaded", "attempts", attempts)
		err = w.inspect(logger, spec)
	}

	result.Attempts = attempts
	result.Elapsed = time.Since(start)
	result.Err = err
	result.Status = apperrors.Outcome(err)

	if err == nil {
		logger.Info("Dependency satisfied", "attempts", attempts, "elapsed", result.Elapsed)
	}
	return result
}

// fetchUntilDeadline retries the fetch at a fixed interval until it succeeds,
// fails permanently or the dependency's deadline passes.
func (w *Waiter) fetchUntilDeadline(ctx context.Context, logger *slog.Logger, spec dependency.Spec, artifact string, start time.Time) (int, error) {
	if err := w.prepareDir(); err != nil {
		return 0, err
	}
	if spec.Timeout == 0 {
		logger.Error("Timed out waiting for artifact", "attempts", 0, "timeout", spec.Timeout)
		return 0, apperrors.Timeout(spec.Name, spec.Timeout, 0, nil)
	}

	waitCtx, cancel := context.WithDeadline(ctx, spec.Deadline(start))
	defer cancel()

	req := fetch.Request{
		Dependency: spec.Name,
		Artifact:   artifact,
		RunID:      w.config.RunID,
		Repository: w.config.Repository,
		Dir:        w.config.DownloadDir,
	}

	attempts := 0
	var lastErr error
	operation := func() error {
		attempts++
		err := w.attempt(waitCtx, spec.Name, req)
		if err == nil {
			return nil
		}
		if fetch.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		lastErr = err
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Info("Artifact not available yet, retrying", "attempt", attempts, "retryIn", next, "error", err)
	}

	err := backoff.RetryNotify(operation, retry.Constant(waitCtx, w.config.RetryInterval), notify)
	switch {
	case err == nil:
		return attempts, nil
	case ctx.Err() != nil:
		return attempts, fmt.Errorf("dependency %s: wait cancelled: %w", spec.Name, ctx.Err())
	case errors.Is(err, context.DeadlineExceeded) && waitCtx.Err() != nil:
		logger.Error("Timed out waiting for artifact", "attempts", attempts, "timeout", spec.Timeout, "lastError", lastErr)
		return attempts, apperrors.Timeout(spec.Name, spec.Timeout, attempts, lastErr)
	default:
		logger.Error("Fetch failed permanently", "attempts", attempts, "error", err)
		return attempts, apperrors.FetchAborted(spec.Name, err)
	}
}

// attempt runs one fetch, bounded by the per-attempt timeout.
func (w *Waiter) attempt(ctx context.Context, name string, req fetch.Request) error {
	if w.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.FetchTimeout)
		defer cancel()
	}

	t0 := time.Now()
	err := w.fetcher.Fetch(ctx, req)
	w.metrics.RecordFetchAttempt(ctx, name, err == nil, time.Since(t0).Seconds())
	return err
}

// prepareDir creates the download directory and removes a result file left
// by a previous dependency, so a fetch that writes nothing is detected.
func (w *Waiter) prepareDir() error {
	if err := os.MkdirAll(w.config.DownloadDir, 0o755); err != nil {
		return apperrors.Internal("create download dir", err)
	}
	if err := os.Remove(w.config.ResultPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Internal("remove stale result file", err)
	}
	return nil
}
