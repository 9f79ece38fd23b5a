package queue

import (
	"time"

	cberrors "github.com/marrowlabs/corebus/pkg/corebus/errors"
)

// Status is the lifecycle state of a message.
//
// Transitions are monotonic per attempt:
//
//	pending -> processing -> completed
//	pending -> processing -> pending (retry, attempts < max)
//	pending -> processing -> dead-letter (attempts == max)
type Status string

// Message statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusDeadLetter Status = "dead-letter"
)

// Priority orders messages on priority queues. 0 is the highest band,
// 4 the lowest.
type Priority int

// Message priority bands.
const (
	PriorityHighest Priority = 0
	PriorityHigh    Priority = 1
	PriorityNormal  Priority = 2
	PriorityLow     Priority = 3
	PriorityLowest  Priority = 4
)

// Metadata carries per-message delivery directives and correlation.
type Metadata struct {
	// TTL bounds how long the message may wait before being purged.
	// 0 means no expiry.
	TTL time.Duration `json:"ttl,omitempty"`

	// DelayUntil defers dispatch until this instant. Also set by the
	// retry machinery for backoff.
	DelayUntil time.Time `json:"delay_until,omitempty"`

	// RetryPolicy overrides the queue's backoff configuration.
	RetryPolicy *cberrors.BackoffConfig `json:"retry_policy,omitempty"`

	// CorrelationID links the message to a larger exchange.
	CorrelationID string `json:"correlation_id,omitempty"`

	// CausationID is the id of the message, event, or job that caused
	// this one.
	CausationID string `json:"causation_id,omitempty"`

	// OriginQueue is set on dead-letter copies to the queue the message
	// originally failed on.
	OriginQueue string `json:"origin_queue,omitempty"`
}

// Message is a unit of deferred work on a queue.
type Message struct {
	ID        string         `json:"id"`
	Queue     string         `json:"queue"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Priority  Priority       `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`

	// ProcessedAt is set while a consumer holds the message.
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	// CompletedAt is set once the message completes.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Attempts counts processing attempts; attempts <= MaxAttempts always
	// holds before a dead-letter transition.
	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"max_attempts"`

	Status Status `json:"status"`

	// Error preserves the most recent handler failure.
	Error string `json:"error,omitempty"`

	Meta Metadata `json:"metadata"`

	// seq is the broker-wide enqueue sequence, the FIFO tiebreak when
	// CreatedAt collides under a coarse clock.
	seq uint64

	// delayBy is the publish-time delay option, resolved into
	// Meta.DelayUntil against the broker clock.
	delayBy time.Duration

	// consumerID attributes the message to exactly one consumer while
	// processing.
	consumerID string

	// pinnedConsumer restricts dispatch to one consumer (broadcast
	// fan-out copies).
	pinnedConsumer string
}

// expired reports whether the message's own TTL has elapsed.
func (m *Message) expired(now time.Time) bool {
	return m.Meta.TTL > 0 && now.Sub(m.CreatedAt) >= m.Meta.TTL
}

// eligible reports whether the message may be dispatched at the given
// instant.
func (m *Message) eligible(now time.Time) bool {
	if m.Status != StatusPending {
		return false
	}
	if !m.Meta.DelayUntil.IsZero() && m.Meta.DelayUntil.After(now) {
		return false
	}
	return !m.expired(now)
}
