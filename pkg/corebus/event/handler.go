package event

import (
	"context"
	"fmt"
	"time"

	cberrors "github.com/marrowlabs/corebus/pkg/corebus/errors"
)

// HandlerID identifies a registered handler.
type HandlerID string

// HandlerFunc processes a published event. A non-nil error (or a panic) is
// isolated to this handler and never propagates to siblings or the
// publisher.
type HandlerFunc func(ctx context.Context, evt Event) error

// HandlerOptions configures a subscription.
type HandlerOptions struct {
	// PriorityWeight orders handler invocation, highest first.
	// Default: 0
	PriorityWeight int

	// Filter skips delivery when it returns false.
	Filter func(Event) bool

	// ErrorHandler receives this handler's failures. When set, the bus
	// does not emit an event-error for them.
	ErrorHandler func(Event, error)

	// Timeout bounds one handler execution.
	// Default: the bus DefaultTimeout (30s)
	Timeout time.Duration
}

// HandlerOption configures a subscription.
type HandlerOption func(*HandlerOptions)

// WithPriorityWeight sets the invocation-order weight, highest first.
func WithPriorityWeight(w int) HandlerOption {
	return func(o *HandlerOptions) {
		o.PriorityWeight = w
	}
}

// WithFilter skips delivery when the predicate returns false.
func WithFilter(filter func(Event) bool) HandlerOption {
	return func(o *HandlerOptions) {
		o.Filter = filter
	}
}

// WithErrorHandler routes this handler's failures to fn instead of the
// bus's event-error emission.
func WithErrorHandler(fn func(Event, error)) HandlerOption {
	return func(o *HandlerOptions) {
		o.ErrorHandler = fn
	}
}

// WithTimeout bounds one handler execution.
func WithTimeout(d time.Duration) HandlerOption {
	return func(o *HandlerOptions) {
		o.Timeout = d
	}
}

// handlerEntry stores a handler with its configuration.
type handlerEntry struct {
	id      HandlerID
	pattern Pattern
	fn      HandlerFunc
	opts    HandlerOptions
	seq     uint64 // registration order, tiebreak for equal weights
}

// safeCall invokes a handler, converting panics into HandlerError.
func safeCall(fn HandlerFunc, ctx context.Context, evt Event, id HandlerID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &cberrors.HandlerError{
				Handler: string(id),
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return fn(ctx, evt)
}
