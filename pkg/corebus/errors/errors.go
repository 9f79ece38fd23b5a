// Package errors provides the error taxonomy shared by the bus and the
// message broker, plus categorization and backoff helpers.
//
// The package implements a layered error handling approach:
//   - Typed errors: callers can branch with errors.As
//   - Categorization: classify errors as transient or permanent
//   - Backoff: exponential retry delay computation used by the broker
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError indicates structural misuse of the API: an unknown queue
// or consumer id, a full queue, or an invalid schedule. It is returned
// synchronously at the call site, never through the retry machinery.
type ValidationError struct {
	// Entity is the kind of object that failed validation ("queue",
	// "consumer", "job", "message").
	Entity string

	// ID is the identifier that was rejected, if any.
	ID string

	// Message describes the failure.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %q: %s", e.Entity, e.ID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Message)
}

// TimeoutError indicates a handler exceeded its configured timeout.
type TimeoutError struct {
	// Operation describes what timed out ("handler", "dispatch").
	Operation string

	// Timeout is the limit that was exceeded.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Timeout, e.Operation)
}

// HandlerError wraps an error returned (or panicked) by a handler.
type HandlerError struct {
	// Handler identifies the failing handler.
	Handler string

	// Err is the error the handler produced.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed: %v", e.Handler, e.Err)
}

// Unwrap returns the handler's error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError indicates a message consumed all its attempts and was
// dead-lettered. Err preserves the final handler failure.
type RetryExhaustedError struct {
	// MessageID is the dead-lettered message.
	MessageID string

	// Queue is the queue the message failed on.
	Queue string

	// Attempts is the number of attempts made.
	Attempts int

	// Err is the error from the final attempt.
	Err error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("message %s on queue %q exhausted %d attempts: %v",
		e.MessageID, e.Queue, e.Attempts, e.Err)
}

// Unwrap returns the final attempt's error.
func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// RequestTimeoutError indicates a bus request/response exchange was never
// answered within its deadline.
type RequestTimeoutError struct {
	// Target is the module the request was addressed to.
	Target string

	// Action is the requested action.
	Action string

	// CorrelationID links the request to the response that never arrived.
	CorrelationID string

	// Timeout is the deadline that elapsed.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("request %s.%s (correlation %s) timed out after %s",
		e.Target, e.Action, e.CorrelationID, e.Timeout)
}

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: handler timeouts, temporary downstream failures.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: unknown queue, full queue, exhausted retries.
	CategoryPermanent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return CategoryPermanent
	}

	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		return CategoryPermanent
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	var reqTimeout *RequestTimeoutError
	if errors.As(err, &reqTimeout) {
		return CategoryTransient
	}

	// A handler failure is categorized by its cause when it carries one.
	var handlerErr *HandlerError
	if errors.As(err, &handlerErr) && handlerErr.Err != nil {
		inner := Categorize(handlerErr.Err)
		return inner
	}

	// Unknown errors are treated as transient so the broker's attempt
	// budget, not the classifier, decides when to give up.
	return CategoryTransient
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
