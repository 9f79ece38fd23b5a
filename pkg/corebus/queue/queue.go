package queue

import (
	"time"

	"golang.org/x/time/rate"
)

// Type selects a queue's dispatch discipline.
type Type string

// Queue types.
const (
	// TypeStandard dispatches strict FIFO by creation time.
	TypeStandard Type = "standard"

	// TypePriority dispatches by (priority ascending, creation time
	// ascending); band 0 always goes first.
	TypePriority Type = "priority"

	// TypeDelayed is FIFO among messages whose delay has elapsed.
	TypeDelayed Type = "delayed"

	// TypeBroadcast fans each message out to every consumer; each copy is
	// attributed to exactly one consumer and retries independently.
	TypeBroadcast Type = "broadcast"
)

// NoDeadLetter disables dead-letter pairing for a queue.
const NoDeadLetter = "none"

// DefaultDeadLetterQueue is the pairing used when a queue's config leaves
// DeadLetterQueue empty. Dead-lettering is skipped silently when the
// paired queue does not exist.
const DefaultDeadLetterQueue = "dead-letter"

// RateLimit caps total dispatch across a queue's consumers within a
// rolling window.
type RateLimit struct {
	// Requests is the number of dispatches allowed per Window.
	Requests int

	// Window is the rolling window duration.
	Window time.Duration
}

// Config configures one queue. Zero fields take the documented defaults.
type Config struct {
	// MaxSize bounds live (pending + processing) messages.
	// Default: 10000
	MaxSize int

	// MaxRetries is the attempt budget per message.
	// Default: 3
	MaxRetries int

	// RetryDelay is the backoff before the first retry.
	// Default: 1s
	RetryDelay time.Duration

	// BackoffMultiplier grows the retry delay per failed attempt.
	// Default: 2.0
	BackoffMultiplier float64

	// VisibilityTimeout bounds how long a consumer may hold a message;
	// it is the default handler timeout for consumers on this queue.
	// Default: 30s
	VisibilityTimeout time.Duration

	// MessageRetention is how long settled messages are kept before the
	// cleanup sweep purges them.
	// Default: 1h
	MessageRetention time.Duration

	// Concurrency is the default per-consumer concurrency.
	// Default: 1
	Concurrency int

	// RateLimit caps dispatch across all consumers. Nil disables.
	RateLimit *RateLimit

	// DeadLetterQueue names the paired dead-letter queue. Empty pairs
	// with the broker default; NoDeadLetter disables pairing.
	DeadLetterQueue string
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = 10000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 1 * time.Second
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = 2.0
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 30 * time.Second
	}
	if c.MessageRetention <= 0 {
		c.MessageRetention = 1 * time.Hour
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c
}

// Metrics is a point-in-time snapshot of one queue.
type Metrics struct {
	Name string `json:"name"`
	Type Type   `json:"type"`

	// Size is the number of pending messages.
	Size int `json:"size"`

	// Processing is the number of messages currently held by consumers.
	Processing int `json:"processing"`

	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`

	// Throughput is completions in the last 60s divided by 60.
	Throughput float64 `json:"throughput"`

	AvgProcessingTime time.Duration `json:"avg_processing_time"`

	// OldestMessage is the creation time of the oldest pending message;
	// zero when the queue is empty.
	OldestMessage time.Time `json:"oldest_message,omitempty"`
}

// queueState is the broker-internal representation of one queue.
// All fields are guarded by the broker mutex.
type queueState struct {
	name  string
	qtype Type
	cfg   Config

	messages  map[string]*Message
	consumers []*Consumer
	rr        int // round-robin cursor over consumers

	limiter *rate.Limiter

	completed   int64
	failed      int64
	totalProc   time.Duration
	procSamples int64
	completions []time.Time // completion instants, trimmed to 60s
}

// newQueueState builds queue bookkeeping from a validated config.
func newQueueState(name string, qtype Type, cfg Config) *queueState {
	q := &queueState{
		name:     name,
		qtype:    qtype,
		cfg:      cfg,
		messages: make(map[string]*Message),
	}
	if rl := cfg.RateLimit; rl != nil && rl.Requests > 0 && rl.Window > 0 {
		q.limiter = rate.NewLimiter(
			rate.Limit(float64(rl.Requests)/rl.Window.Seconds()),
			rl.Requests,
		)
	}
	return q
}

// liveCount returns pending + processing messages, the figure bounded by
// MaxSize.
func (q *queueState) liveCount() int {
	n := 0
	for _, m := range q.messages {
		if m.Status == StatusPending || m.Status == StatusProcessing {
			n++
		}
	}
	return n
}

// trimCompletions drops completion samples older than the throughput
// window.
func (q *queueState) trimCompletions(now time.Time) {
	cutoff := now.Add(-throughputWindow)
	i := 0
	for i < len(q.completions) && q.completions[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		q.completions = append(q.completions[:0], q.completions[i:]...)
	}
}

// snapshotMetrics computes the queue metrics at the given instant.
func (q *queueState) snapshotMetrics(now time.Time) Metrics {
	m := Metrics{
		Name:      q.name,
		Type:      q.qtype,
		Completed: q.completed,
		Failed:    q.failed,
	}

	var oldest time.Time
	for _, msg := range q.messages {
		switch msg.Status {
		case StatusPending:
			m.Size++
			if oldest.IsZero() || msg.CreatedAt.Before(oldest) {
				oldest = msg.CreatedAt
			}
		case StatusProcessing:
			m.Processing++
		}
	}
	m.OldestMessage = oldest

	q.trimCompletions(now)
	m.Throughput = float64(len(q.completions)) / throughputWindow.Seconds()

	if q.procSamples > 0 {
		m.AvgProcessingTime = q.totalProc / time.Duration(q.procSamples)
	}
	return m
}

// throughputWindow is the rolling window for the throughput metric.
const throughputWindow = 60 * time.Second
