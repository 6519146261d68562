package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector records session and stream metrics. A zero value is a
// valid disabled collector: every Record method is a no-op.
type MetricsCollector struct {
	registry *promclient.Registry
	provider *sdkmetric.MeterProvider

	sessionsStarted   metric.Int64Counter
	sessionsActive    metric.Int64UpDownCounter
	eventsAppended    metric.Int64Counter
	toolDuration      metric.Float64Histogram
	subscribersActive metric.Int64UpDownCounter
	eventsPublished   metric.Int64Counter
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// NewMetricsCollector creates a collector backed by its own Prometheus registry.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("sandbox-agent")

	collector := &MetricsCollector{registry: registry, provider: provider}

	if collector.sessionsStarted, err = meter.Int64Counter(
		"sandbox.sessions.started",
		metric.WithDescription("Agent runs started, by outcome"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sessions_started counter: %w", err)
	}

	if collector.sessionsActive, err = meter.Int64UpDownCounter(
		"sandbox.sessions.active",
		metric.WithDescription("Agent runs currently in flight"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sessions_active gauge: %w", err)
	}

	if collector.eventsAppended, err = meter.Int64Counter(
		"sandbox.events.appended",
		metric.WithDescription("Events appended to session logs, by kind"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create events_appended counter: %w", err)
	}

	if collector.toolDuration, err = meter.Float64Histogram(
		"sandbox.tool.duration",
		metric.WithDescription("Tool execution duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool_duration histogram: %w", err)
	}

	if collector.subscribersActive, err = meter.Int64UpDownCounter(
		"sandbox.stream.subscribers",
		metric.WithDescription("Stream subscribers currently attached"),
		metric.WithUnit("{subscriber}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create subscribers gauge: %w", err)
	}

	if collector.eventsPublished, err = meter.Int64Counter(
		"sandbox.stream.events.published",
		metric.WithDescription("Events delivered to stream subscribers"),
		metric.WithUnit("{event}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create events_published counter: %w", err)
	}

	return collector, nil
}

// Enabled reports whether the collector exports anything.
func (m *MetricsCollector) Enabled() bool {
	return m != nil && m.registry != nil
}

// Handler serves the Prometheus exposition format.
func (m *MetricsCollector) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func (m *MetricsCollector) RecordSessionStarted(ctx context.Context) {
	if !m.Enabled() {
		return
	}
	m.sessionsActive.Add(ctx, 1)
}

// RecordSessionFinished closes the active gauge and counts the outcome.
func (m *MetricsCollector) RecordSessionFinished(ctx context.Context, outcome string) {
	if !m.Enabled() {
		return
	}
	m.sessionsActive.Add(ctx, -1)
	m.sessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *MetricsCollector) RecordEvent(ctx context.Context, kind string) {
	if !m.Enabled() {
		return
	}
	m.eventsAppended.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *MetricsCollector) RecordToolDuration(ctx context.Context, tool string, success bool, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("tool_name", tool),
		attribute.Bool("success", success),
	))
}

func (m *MetricsCollector) RecordSubscriber(ctx context.Context, delta int64) {
	if !m.Enabled() {
		return
	}
	m.subscribersActive.Add(ctx, delta)
}

func (m *MetricsCollector) RecordPublished(ctx context.Context) {
	if !m.Enabled() {
		return
	}
	m.eventsPublished.Add(ctx, 1)
}
