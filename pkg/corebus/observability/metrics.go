package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records bus and broker metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEventPublished records an event entering the bus.
	RecordEventPublished(ctx context.Context, eventType string)

	// RecordEventHandled records one handler execution with its duration
	// and error status.
	RecordEventHandled(ctx context.Context, eventType string, duration time.Duration, err error)

	// RecordMessagePublished records a message accepted by a queue.
	RecordMessagePublished(ctx context.Context, queue string)

	// RecordMessageProcessed records one processing attempt with its
	// duration and error status.
	RecordMessageProcessed(ctx context.Context, queue string, duration time.Duration, err error)

	// RecordDeadLetter records a message exhausting its attempts.
	RecordDeadLetter(ctx context.Context, queue string)

	// RecordJobRun records a scheduled job firing.
	RecordJobRun(ctx context.Context, jobType string, success bool)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	eventsPublished   metric.Int64Counter
	eventsHandled     metric.Int64Counter
	handlerErrors     metric.Int64Counter
	handlerLatency    metric.Float64Histogram
	messagesPublished metric.Int64Counter
	messagesProcessed metric.Int64Counter
	processingErrors  metric.Int64Counter
	processingLatency metric.Float64Histogram
	deadLetters       metric.Int64Counter
	jobRuns           metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("corebus")

	eventsPublished, err := meter.Int64Counter("corebus.events.published",
		metric.WithDescription("Number of events published to the bus"),
	)
	if err != nil {
		return nil, err
	}

	eventsHandled, err := meter.Int64Counter("corebus.events.handled",
		metric.WithDescription("Number of handler executions"),
	)
	if err != nil {
		return nil, err
	}

	handlerErrors, err := meter.Int64Counter("corebus.events.handler_errors",
		metric.WithDescription("Number of failed handler executions"),
	)
	if err != nil {
		return nil, err
	}

	handlerLatency, err := meter.Float64Histogram("corebus.events.handler_latency_ms",
		metric.WithDescription("Handler execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	messagesPublished, err := meter.Int64Counter("corebus.messages.published",
		metric.WithDescription("Number of messages accepted by queues"),
	)
	if err != nil {
		return nil, err
	}

	messagesProcessed, err := meter.Int64Counter("corebus.messages.processed",
		metric.WithDescription("Number of message processing attempts"),
	)
	if err != nil {
		return nil, err
	}

	processingErrors, err := meter.Int64Counter("corebus.messages.errors",
		metric.WithDescription("Number of failed processing attempts"),
	)
	if err != nil {
		return nil, err
	}

	processingLatency, err := meter.Float64Histogram("corebus.messages.latency_ms",
		metric.WithDescription("Message processing latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	deadLetters, err := meter.Int64Counter("corebus.messages.dead_letters",
		metric.WithDescription("Number of messages moved to a dead-letter queue"),
	)
	if err != nil {
		return nil, err
	}

	jobRuns, err := meter.Int64Counter("corebus.jobs.runs",
		metric.WithDescription("Number of scheduled job executions"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		eventsPublished:   eventsPublished,
		eventsHandled:     eventsHandled,
		handlerErrors:     handlerErrors,
		handlerLatency:    handlerLatency,
		messagesPublished: messagesPublished,
		messagesProcessed: messagesProcessed,
		processingErrors:  processingErrors,
		processingLatency: processingLatency,
		deadLetters:       deadLetters,
		jobRuns:           jobRuns,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEventPublished records an event entering the bus.
func (m *otelMetrics) RecordEventPublished(ctx context.Context, eventType string) {
	m.eventsPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordEventHandled records one handler execution.
func (m *otelMetrics) RecordEventHandled(ctx context.Context, eventType string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("event_type", eventType),
	}

	m.eventsHandled.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.handlerLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.handlerErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordMessagePublished records a message accepted by a queue.
func (m *otelMetrics) RecordMessagePublished(ctx context.Context, queue string) {
	m.messagesPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", queue),
	))
}

// RecordMessageProcessed records one processing attempt.
func (m *otelMetrics) RecordMessageProcessed(ctx context.Context, queue string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("queue", queue),
	}

	m.messagesProcessed.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.processingLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.processingErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordDeadLetter records a message exhausting its attempts.
func (m *otelMetrics) RecordDeadLetter(ctx context.Context, queue string) {
	m.deadLetters.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", queue),
	))
}

// RecordJobRun records a scheduled job firing.
func (m *otelMetrics) RecordJobRun(ctx context.Context, jobType string, success bool) {
	m.jobRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", jobType),
		attribute.Bool("success", success),
	))
}
