package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the corebus tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("corebus")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartPublishSpan starts a span for a bus publish fan-out.
	StartPublishSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span)

	// StartDispatchSpan starts a span for one message processing attempt.
	StartDispatchSpan(ctx context.Context, queue, messageID string, attempt int) (context.Context, trace.Span)

	// StartJobSpan starts a span for a scheduled job execution.
	StartJobSpan(ctx context.Context, jobType, jobID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartPublishSpan starts a span for a bus publish fan-out.
func (m *otelSpanManager) StartPublishSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "corebus.publish",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("event.id", eventID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartDispatchSpan starts a span for one message processing attempt.
func (m *otelSpanManager) StartDispatchSpan(ctx context.Context, queue, messageID string, attempt int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "corebus.dispatch",
		trace.WithAttributes(
			attribute.String("queue.name", queue),
			attribute.String("message.id", messageID),
			attribute.Int("message.attempt", attempt),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartJobSpan starts a span for a scheduled job execution.
func (m *otelSpanManager) StartJobSpan(ctx context.Context, jobType, jobID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "corebus.job",
		trace.WithAttributes(
			attribute.String("job.type", jobType),
			attribute.String("job.id", jobID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
