package event

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies an event for routing and history queries.
type Category string

// Event categories.
const (
	CategoryBusiness    Category = "business"
	CategorySystem      Category = "system"
	CategoryIntegration Category = "integration"
	CategoryAlert       Category = "alert"
	CategoryMetric      Category = "metric"
	CategoryError       Category = "error"
)

// Priority orders handler-independent event importance.
type Priority int

// Event priorities.
const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Metadata carries correlation and attribution fields.
type Metadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	CausationID   string `json:"causation_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	RetryCount    int    `json:"retry_count,omitempty"`
}

// Event is an immutable record published on the bus. Events are passed by
// value; handlers receive independent copies of everything but the payload
// map, which they must not mutate.
type Event struct {
	// ID uniquely identifies this event. Assigned on publish if empty.
	ID string `json:"id"`

	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`

	// Source identifies the publishing module.
	Source string `json:"source"`

	// Target optionally addresses a specific module.
	Target string `json:"target,omitempty"`

	// Type is the dot-namespaced event type (e.g. "order.created").
	Type string `json:"type"`

	// Category classifies the event.
	Category Category `json:"category"`

	// Priority indicates event importance.
	Priority Priority `json:"priority"`

	// Payload carries event data.
	Payload map[string]any `json:"payload,omitempty"`

	// Meta carries correlation and attribution fields.
	Meta Metadata `json:"metadata"`
}

// Option configures event creation.
type Option func(*Event)

// WithTarget addresses the event to a specific module.
func WithTarget(target string) Option {
	return func(e *Event) {
		e.Target = target
	}
}

// WithCategory sets the event category.
func WithCategory(c Category) Option {
	return func(e *Event) {
		e.Category = c
	}
}

// WithPriority sets the event priority.
func WithPriority(p Priority) Option {
	return func(e *Event) {
		e.Priority = p
	}
}

// WithCorrelationID sets the correlation id for tracing.
func WithCorrelationID(id string) Option {
	return func(e *Event) {
		e.Meta.CorrelationID = id
	}
}

// WithCausationID sets the id of the event or job that caused this one.
func WithCausationID(id string) Option {
	return func(e *Event) {
		e.Meta.CausationID = id
	}
}

// WithUserID attributes the event to a user.
func WithUserID(id string) Option {
	return func(e *Event) {
		e.Meta.UserID = id
	}
}

// WithSessionID attributes the event to a session.
func WithSessionID(id string) Option {
	return func(e *Event) {
		e.Meta.SessionID = id
	}
}

// New creates an event with the given type, source, and payload.
// The id and timestamp are assigned here; Publish fills them only when the
// caller constructed the Event literal directly.
func New(eventType, source string, payload map[string]any, opts ...Option) Event {
	evt := Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Source:    source,
		Type:      eventType,
		Category:  CategorySystem,
		Priority:  PriorityMedium,
		Payload:   payload,
	}

	for _, opt := range opts {
		opt(&evt)
	}

	// If no correlation id, this event is the root of its chain.
	if evt.Meta.CorrelationID == "" {
		evt.Meta.CorrelationID = evt.ID
	}

	return evt
}

// NewFromParent creates an event caused by a parent event. It inherits the
// correlation id and sets the causation id.
func NewFromParent(parent Event, eventType, source string, payload map[string]any, opts ...Option) Event {
	parentOpts := []Option{
		WithCorrelationID(parent.Meta.CorrelationID),
		WithCausationID(parent.ID),
	}
	return New(eventType, source, payload, append(parentOpts, opts...)...)
}
