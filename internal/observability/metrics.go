package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the waiter's metrics:
// - Latency: how long each fetch attempt and each dependency wait takes
// - Traffic: fetch attempts per dependency
// - Errors: failed attempts and non-satisfied outcomes
// - Saturation: dependencies still pending
//
// All methods are safe on a nil *Metrics, so callers can run without metrics.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	FetchAttempts       metric.Int64Counter
	FetchDuration       metric.Float64Histogram
	DependencyWait      metric.Float64Histogram
	DependenciesTotal   metric.Int64Counter
	DependenciesPending metric.Int64UpDownCounter
	ExitCode            metric.Int64Gauge
}

// NewMetrics creates all metrics on a dedicated Prometheus registry.
func NewMetrics(ctx context.Context) (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("depwait")
	m := &Metrics{registry: registry, provider: provider}

	m.FetchAttempts, err = meter.Int64Counter(
		"depwait_fetch_attempts_total",
		metric.WithDescription("Total number of artifact fetch attempts"),
	)
	if err != nil {
		return nil, err
	}

	m.FetchDuration, err = meter.Float64Histogram(
		"depwait_fetch_duration_seconds",
		metric.WithDescription("Duration of a single fetch attempt in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	m.DependencyWait, err = meter.Float64Histogram(
		"depwait_dependency_wait_seconds",
		metric.WithDescription("Time spent waiting for a dependency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600),
	)
	if err != nil {
		return nil, err
	}

	m.DependenciesTotal, err = meter.Int64Counter(
		"depwait_dependencies_total",
		metric.WithDescription("Total number of dependencies resolved, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.DependenciesPending, err = meter.Int64UpDownCounter(
		"depwait_dependencies_pending",
		metric.WithDescription("Number of dependencies not yet resolved (saturation)"),
	)
	if err != nil {
		return nil, err
	}

	m.ExitCode, err = meter.Int64Gauge(
		"depwait_exit_code",
		metric.WithDescription("Exit code of the last depwait run"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current metrics to path, for the node_exporter
// textfile collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordDependencyPending records the dependencies queued for this run.
func (m *Metrics) RecordDependencyPending(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.DependenciesPending.Add(ctx, int64(count))
}

// RecordFetchAttempt records one fetch attempt and its duration.
func (m *Metrics) RecordFetchAttempt(ctx context.Context, dependency string, success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.FetchAttempts.Add(ctx, 1, metric.WithAttributes(dependencyAttr(dependency), successAttr(success)))
	m.FetchDuration.Record(ctx, durationSeconds, metric.WithAttributes(dependencyAttr(dependency)))
}

// RecordDependencyResolved records a dependency leaving the pending set.
func (m *Metrics) RecordDependencyResolved(ctx context.Context, dependency, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.DependencyWait.Record(ctx, durationSeconds, metric.WithAttributes(dependencyAttr(dependency), outcomeAttr(outcome)))
	m.DependenciesTotal.Add(ctx, 1, metric.WithAttributes(outcomeAttr(outcome)))
	m.DependenciesPending.Add(ctx, -1)
}

// RecordExit records the process exit code.
func (m *Metrics) RecordExit(ctx context.Context, code int) {
	if m == nil {
		return
	}
	m.ExitCode.Record(ctx, int64(code))
}
