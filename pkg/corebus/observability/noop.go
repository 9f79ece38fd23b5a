package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordEventPublished does nothing.
func (NoopMetrics) RecordEventPublished(_ context.Context, _ string) {}

// RecordEventHandled does nothing.
func (NoopMetrics) RecordEventHandled(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordMessagePublished does nothing.
func (NoopMetrics) RecordMessagePublished(_ context.Context, _ string) {}

// RecordMessageProcessed does nothing.
func (NoopMetrics) RecordMessageProcessed(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordDeadLetter does nothing.
func (NoopMetrics) RecordDeadLetter(_ context.Context, _ string) {}

// RecordJobRun does nothing.
func (NoopMetrics) RecordJobRun(_ context.Context, _ string, _ bool) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is a span that does nothing.
// We use the OTel noop package for a proper no-op span implementation.
var noopSpan = noop.Span{}

// StartPublishSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartPublishSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartDispatchSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartDispatchSpan(ctx context.Context, _, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartJobSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartJobSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
