package queue

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	cberrors "github.com/marrowlabs/corebus/pkg/corebus/errors"
)

// Handler processes one message. The message is passed by value; the
// broker applies the outcome to its own copy.
type Handler func(ctx context.Context, msg Message) error

// ConsumerStatus is a consumer's dispatch eligibility.
type ConsumerStatus string

// Consumer statuses.
const (
	ConsumerActive  ConsumerStatus = "active"
	ConsumerPaused  ConsumerStatus = "paused"
	ConsumerStopped ConsumerStatus = "stopped"
)

// ConsumerOptions configures a subscription to a queue.
type ConsumerOptions struct {
	// Concurrency bounds simultaneous handler executions for this
	// consumer.
	// Default: the queue's Concurrency
	Concurrency int

	// Timeout bounds one handler execution.
	// Default: the queue's VisibilityTimeout
	Timeout time.Duration

	// Filter skips messages this consumer should not receive.
	Filter func(Message) bool

	// ErrorHandler observes this consumer's failures. The retry state
	// machine runs regardless.
	ErrorHandler func(Message, error)
}

// ConsumerOption configures a subscription.
type ConsumerOption func(*ConsumerOptions)

// WithConcurrency bounds simultaneous handler executions.
func WithConcurrency(n int) ConsumerOption {
	return func(o *ConsumerOptions) {
		o.Concurrency = n
	}
}

// WithTimeout bounds one handler execution.
func WithTimeout(d time.Duration) ConsumerOption {
	return func(o *ConsumerOptions) {
		o.Timeout = d
	}
}

// WithFilter skips messages the predicate rejects.
func WithFilter(filter func(Message) bool) ConsumerOption {
	return func(o *ConsumerOptions) {
		o.Filter = filter
	}
}

// WithErrorHandler observes this consumer's failures.
func WithErrorHandler(fn func(Message, error)) ConsumerOption {
	return func(o *ConsumerOptions) {
		o.ErrorHandler = fn
	}
}

// Consumer is one subscription competing for a queue's pending pool.
type Consumer struct {
	id      string
	queue   string
	handler Handler
	opts    ConsumerOptions
	status  ConsumerStatus

	// sem gates concurrency; TryAcquire keeps the capacity check
	// non-blocking under the broker mutex.
	sem      *semaphore.Weighted
	inflight int

	processed     int64
	failed        int64
	totalProc     time.Duration
	lastProcessed time.Time
}

// ID returns the consumer id.
func (c *Consumer) ID() string {
	return c.id
}

// ConsumerMetrics is a point-in-time snapshot of one consumer.
type ConsumerMetrics struct {
	ConsumerID string         `json:"consumer_id"`
	Queue      string         `json:"queue"`
	Status     ConsumerStatus `json:"status"`

	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`

	AvgProcessingTime time.Duration `json:"avg_processing_time"`
	LastProcessed     time.Time     `json:"last_processed,omitempty"`
}

// snapshotMetrics computes the consumer metrics.
func (c *Consumer) snapshotMetrics() ConsumerMetrics {
	m := ConsumerMetrics{
		ConsumerID:    c.id,
		Queue:         c.queue,
		Status:        c.status,
		Processed:     c.processed,
		Failed:        c.failed,
		LastProcessed: c.lastProcessed,
	}
	if n := c.processed + c.failed; n > 0 {
		m.AvgProcessingTime = c.totalProc / time.Duration(n)
	}
	return m
}

// accepts reports whether the consumer may take the message right now.
// Capacity is checked separately via the semaphore.
func (c *Consumer) accepts(m *Message) bool {
	if c.status != ConsumerActive {
		return false
	}
	if m.pinnedConsumer != "" && m.pinnedConsumer != c.id {
		return false
	}
	if c.opts.Filter != nil && !c.opts.Filter(*m) {
		return false
	}
	return true
}

// safeHandle invokes a message handler, converting panics into
// HandlerError so the retry machinery sees them as ordinary failures.
func safeHandle(h Handler, ctx context.Context, msg Message, consumerID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &cberrors.HandlerError{
				Handler: consumerID,
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return h(ctx, msg)
}
