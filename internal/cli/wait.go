package cli

import (
	"context"
	"depwait/internal/apperrors"
	"depwait/internal/config"
	"depwait/internal/dependency"
	"depwait/internal/fetch"
	"depwait/internal/health"
	"depwait/internal/notify"
	"depwait/internal/observability"
	"depwait/internal/waiter"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func (a *App) newWaitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "wait",
		Short: "Wait for every dependency and exit with the gate result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if code, err := a.runWait(cmd.Context(), cfg); code != apperrors.ExitSuccess {
				return &exitError{code: code, err: err}
			}
			return nil
		},
	}
}

// runWait waits for the configured dependencies and returns the exit code.
func (a *App) runWait(ctx context.Context, cfg *config.Config) (int, error) {
	specs, err := loadDependencies(cfg)
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		return apperrors.ExitFailure, err
	}

	metrics, err := observability.NewMetrics(ctx)
	if err != nil {
		return apperrors.ExitFailure, fmt.Errorf("failed to create metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Metrics shutdown error", "error", err)
		}
	}()

	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	tracker := health.NewTracker(cfg.Repository, cfg.RunID, names)

	if cfg.MetricsPort != "" {
		stop, err := serveMetrics(cfg.MetricsPort, metrics.Handler(), tracker.Handler())
		if err != nil {
			return apperrors.ExitFailure, err
		}
		defer stop()
	}

	newFetcher := a.NewFetcher
	if newFetcher == nil {
		newFetcher = fetch.New
	}
	fetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		slog.Error("Failed to create fetcher", "fetchMode", cfg.FetchMode, "error", err)
		return apperrors.ExitFailure, err
	}
	if closer, ok := fetcher.(io.Closer); ok {
		defer closer.Close()
	}

	notifier := notify.New(cfg)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = notifier.Close(closeCtx)
	}()

	w, err := waiter.New(cfg, specs, fetcher,
		waiter.WithMetrics(metrics),
		waiter.WithListener(tracker),
		waiter.WithListener(notifier),
	)
	if err != nil {
		return apperrors.ExitFailure, err
	}

	report, runErr := w.Run(ctx)
	code := apperrors.ExitCode(runErr, cfg.SkipExitCode)

	printSummary(a.out(), report)
	slog.Info("Finished", "outcome", apperrors.Outcome(runErr), "exitCode", code, "counts", report.Counts(), "elapsed", report.Finished.Sub(report.Started))

	tracker.Finish(code)
	metrics.RecordExit(context.WithoutCancel(ctx), code)
	if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
		slog.Warn("Failed to write metrics textfile", "path", cfg.MetricsTextfile, "error", err)
	}
	notifier.RunExit(code, report, runErr)

	return code, runErr
}

// loadDependencies parses and validates everything a run needs.
func loadDependencies(cfg *config.Config) ([]dependency.Spec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	specs, err := dependency.Parse([]byte(cfg.DependenciesJSON))
	if err != nil {
		return nil, apperrors.Validation("dependencies", err.Error())
	}
	if err := dependency.Validate(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// serveMetrics exposes metrics on /metrics and the progress endpoints of
// status until the returned stop is called.
func serveMetrics(port string, metrics, status http.Handler) (func(), error) {
	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on metrics port %s: %w", port, err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics)
	mux.Handle("/", status)
	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting metrics server", "port", port)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}, nil
}
