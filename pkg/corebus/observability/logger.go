// Package observability provides production-grade observability features
// for corebus: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// LogEventPublished logs an event entering the bus.
func LogEventPublished(logger *slog.Logger, eventType, source, eventID string) {
	if logger == nil {
		return
	}
	logger.Debug("event published",
		slog.String("event_type", eventType),
		slog.String("source", source),
		slog.String("event_id", eventID),
	)
}

// LogHandlerError logs a bus handler failure. Handler failures are isolated
// per handler, so this is observability only.
func LogHandlerError(logger *slog.Logger, eventType, handlerID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("event handler failed",
		slog.String("event_type", eventType),
		slog.String("handler_id", handlerID),
		slog.String("error", err.Error()),
	)
}

// LogDispatch logs a message being handed to a consumer.
func LogDispatch(logger *slog.Logger, queue, messageID, consumerID string, attempt int) {
	if logger == nil {
		return
	}
	logger.Debug("message dispatched",
		slog.String("queue", queue),
		slog.String("message_id", messageID),
		slog.String("consumer_id", consumerID),
		slog.Int("attempt", attempt),
	)
}

// LogRetry logs a message being rescheduled after a failed attempt.
func LogRetry(logger *slog.Logger, queue, messageID string, attempt int, delay time.Duration, err error) {
	if logger == nil {
		return
	}
	logger.Warn("message retry scheduled",
		slog.String("queue", queue),
		slog.String("message_id", messageID),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
}

// LogDeadLetter logs a message exhausting its attempts.
func LogDeadLetter(logger *slog.Logger, queue, messageID string, attempts int, err error) {
	if logger == nil {
		return
	}
	logger.Error("message dead-lettered",
		slog.String("queue", queue),
		slog.String("message_id", messageID),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
}

// LogJobRun logs a scheduled job firing.
func LogJobRun(logger *slog.Logger, jobID, jobType string, recurring bool) {
	if logger == nil {
		return
	}
	logger.Info("job fired",
		slog.String("job_id", jobID),
		slog.String("job_type", jobType),
		slog.Bool("recurring", recurring),
	)
}

// LogSweep logs a housekeeping pass.
func LogSweep(logger *slog.Logger, purgedMessages, purgedJobs int) {
	if logger == nil {
		return
	}
	if purgedMessages == 0 && purgedJobs == 0 {
		return
	}
	logger.Debug("retention sweep completed",
		slog.Int("purged_messages", purgedMessages),
		slog.Int("purged_jobs", purgedJobs),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
