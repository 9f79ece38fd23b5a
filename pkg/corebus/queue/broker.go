package queue

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/marrowlabs/corebus/pkg/corebus/archive"
	cberrors "github.com/marrowlabs/corebus/pkg/corebus/errors"
	"github.com/marrowlabs/corebus/pkg/corebus/event"
	"github.com/marrowlabs/corebus/pkg/corebus/observability"
)

// ChannelModule is the bus namespace the broker announces lifecycle events
// on ("queue.message.completed", "queue.job.failed", ...).
const ChannelModule = "queue"

// BrokerConfig configures the broker.
type BrokerConfig struct {
	// Bus, when set, receives lifecycle announcements on the "queue"
	// channel. Emission is best-effort; the broker never depends on the
	// bus for correctness.
	Bus *event.Bus

	// Archive, when set, records dead-lettered messages for inspection.
	Archive archive.Store

	// Poison, when set, enables poison-message detection.
	Poison *PoisonConfig

	// Clock drives retry timers, delayed dispatch, and sweeps.
	// Default: the real clock
	Clock clockwork.Clock

	// Logger receives structured diagnostics. Nil disables logging.
	Logger *slog.Logger

	// Metrics records broker instruments. Nil uses NoopMetrics.
	Metrics observability.MetricsRecorder

	// Spans records dispatch and job spans. Nil uses NoopSpanManager.
	Spans observability.SpanManager

	// CleanupInterval is the retention sweep period.
	// Default: 5m
	CleanupInterval time.Duration

	// MetricsInterval is the throughput recomputation period.
	// Default: 10s
	MetricsInterval time.Duration

	// JobRetention is how long settled jobs are kept.
	// Default: 24h
	JobRetention time.Duration
}

// DefaultBrokerConfig provides reasonable defaults.
var DefaultBrokerConfig = BrokerConfig{
	CleanupInterval: 5 * time.Minute,
	MetricsInterval: 10 * time.Second,
	JobRetention:    24 * time.Hour,
}

// Broker owns named queues, their messages, consumers, and scheduled jobs.
// All state lives behind one mutex; handler execution is the only
// concurrency, bounded per consumer.
type Broker struct {
	cfg     BrokerConfig
	clock   clockwork.Clock
	log     *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	chn     *event.Channel
	arch    archive.Store
	poison  *PoisonDetector

	mu        sync.Mutex
	queues    map[string]*queueState
	consumers map[string]*Consumer
	jobs      map[string]*Job
	seq       uint64
	started   bool
	stopped   bool
	stopCh    chan struct{}

	handlers sync.WaitGroup // in-flight handler executions
	loops    sync.WaitGroup // sweep goroutines
}

// NewBroker creates a broker. Queues dispatch as soon as they have
// consumers; Start only adds the housekeeping sweeps.
func NewBroker(cfg BrokerConfig) *Broker {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultBrokerConfig.CleanupInterval
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = DefaultBrokerConfig.MetricsInterval
	}
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = DefaultBrokerConfig.JobRetention
	}

	b := &Broker{
		cfg:       cfg,
		clock:     cfg.Clock,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		spans:     cfg.Spans,
		arch:      cfg.Archive,
		queues:    make(map[string]*queueState),
		consumers: make(map[string]*Consumer),
		jobs:      make(map[string]*Job),
		stopCh:    make(chan struct{}),
	}
	if cfg.Bus != nil {
		b.chn = cfg.Bus.Channel(ChannelModule)
	}
	if cfg.Poison != nil {
		b.poison = NewPoisonDetector(*cfg.Poison, cfg.Clock)
	}
	return b
}

// Start launches the retention and metrics sweeps.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return &cberrors.ValidationError{Entity: "broker", Message: "stopped"}
	}
	if b.started {
		return nil
	}
	b.started = true

	b.loops.Add(2)
	go b.cleanupLoop()
	go b.metricsLoop()
	return nil
}

// Stop halts dispatch, cancels pending job timers, and waits for sweeps
// and in-flight handlers to settle, bounded by ctx.
func (b *Broker) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	close(b.stopCh)
	for _, job := range b.jobs {
		if job.timer != nil {
			job.timer.Stop()
		}
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.loops.Wait()
		b.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateQueue registers a queue. The name must be unique.
func (b *Broker) CreateQueue(name string, qtype Type, cfg Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if name == "" {
		return &cberrors.ValidationError{Entity: "queue", Message: "name is required"}
	}
	if _, exists := b.queues[name]; exists {
		return &cberrors.ValidationError{Entity: "queue", ID: name, Message: "already exists"}
	}

	b.queues[name] = newQueueState(name, qtype, cfg.withDefaults())
	return nil
}

// Queues returns the registered queue names.
func (b *Broker) Queues() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PublishOption configures one publish.
type PublishOption func(*Message)

// WithPriority sets the priority band (0 highest, 4 lowest).
func WithPriority(p Priority) PublishOption {
	return func(m *Message) {
		m.Priority = p
	}
}

// WithDelay defers dispatch for the given duration.
func WithDelay(d time.Duration) PublishOption {
	return func(m *Message) {
		m.delayBy = d
	}
}

// WithTTL bounds how long the message may wait before being purged.
func WithTTL(d time.Duration) PublishOption {
	return func(m *Message) {
		m.Meta.TTL = d
	}
}

// WithMaxAttempts overrides the queue's attempt budget for this message.
func WithMaxAttempts(n int) PublishOption {
	return func(m *Message) {
		m.MaxAttempts = n
	}
}

// WithCorrelationID links the message to a larger exchange.
func WithCorrelationID(id string) PublishOption {
	return func(m *Message) {
		m.Meta.CorrelationID = id
	}
}

// WithCausationID records what caused this message.
func WithCausationID(id string) PublishOption {
	return func(m *Message) {
		m.Meta.CausationID = id
	}
}

// WithRetryPolicy overrides the queue's backoff for this message.
func WithRetryPolicy(policy cberrors.BackoffConfig) PublishOption {
	return func(m *Message) {
		m.Meta.RetryPolicy = &policy
	}
}

// Publish enqueues a message and returns its id. It fails synchronously
// with a ValidationError for an unknown queue or a full queue; processing
// outcomes are observable only through events and metrics.
func (b *Broker) Publish(queueName, msgType string, payload map[string]any, opts ...PublishOption) (string, error) {
	b.mu.Lock()

	if b.stopped {
		b.mu.Unlock()
		return "", &cberrors.ValidationError{Entity: "broker", Message: "stopped"}
	}

	q, ok := b.queues[queueName]
	if !ok {
		b.mu.Unlock()
		return "", &cberrors.ValidationError{Entity: "queue", ID: queueName, Message: "not found"}
	}
	// Broadcast fan-out enqueues one copy per consumer, so the bound is
	// checked against all copies, not just the base message.
	needed := 1
	if q.qtype == TypeBroadcast && len(q.consumers) > 1 {
		needed = len(q.consumers)
	}
	if q.liveCount()+needed > q.cfg.MaxSize {
		b.mu.Unlock()
		return "", &cberrors.ValidationError{Entity: "queue", ID: queueName, Message: "full"}
	}

	now := b.clock.Now()
	msg := &Message{
		ID:          uuid.New().String(),
		Queue:       queueName,
		Type:        msgType,
		Payload:     payload,
		Priority:    PriorityNormal,
		CreatedAt:   now,
		MaxAttempts: q.cfg.MaxRetries,
		Status:      StatusPending,
	}
	for _, opt := range opts {
		opt(msg)
	}
	if msg.delayBy > 0 {
		msg.Meta.DelayUntil = now.Add(msg.delayBy)
	}
	if msg.Meta.CorrelationID == "" {
		msg.Meta.CorrelationID = msg.ID
	}

	b.enqueueLocked(q, msg)

	// Broadcast queues fan out one pinned copy per additional consumer.
	if q.qtype == TypeBroadcast && len(q.consumers) > 1 {
		msg.pinnedConsumer = q.consumers[0].id
		for _, c := range q.consumers[1:] {
			clone := *msg
			clone.ID = uuid.New().String()
			clone.Meta.CausationID = msg.ID
			clone.pinnedConsumer = c.id
			b.enqueueLocked(q, &clone)
		}
	}

	delayed := !msg.Meta.DelayUntil.IsZero() && msg.Meta.DelayUntil.After(now)
	if delayed {
		b.scheduleDispatchLocked(queueName, msg.Meta.DelayUntil.Sub(now))
	} else {
		b.dispatchLocked(q)
	}
	b.mu.Unlock()

	b.metrics.RecordMessagePublished(context.Background(), queueName)
	b.emit("message.published", map[string]any{
		"message_id": msg.ID,
		"queue":      queueName,
		"type":       msgType,
		"delayed":    delayed,
	})
	return msg.ID, nil
}

// enqueueLocked stores a message and stamps its dispatch sequence.
func (b *Broker) enqueueLocked(q *queueState, m *Message) {
	b.seq++
	m.seq = b.seq
	q.messages[m.ID] = m
}

// Subscribe attaches a consumer to a queue and returns its id. Multiple
// consumers compete for the queue's shared pending pool.
func (b *Broker) Subscribe(queueName string, handler Handler, opts ...ConsumerOption) (string, error) {
	b.mu.Lock()

	q, ok := b.queues[queueName]
	if !ok {
		b.mu.Unlock()
		return "", &cberrors.ValidationError{Entity: "queue", ID: queueName, Message: "not found"}
	}
	if handler == nil {
		b.mu.Unlock()
		return "", &cberrors.ValidationError{Entity: "consumer", Message: "handler is required"}
	}

	options := ConsumerOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Concurrency <= 0 {
		options.Concurrency = q.cfg.Concurrency
	}
	if options.Timeout <= 0 {
		options.Timeout = q.cfg.VisibilityTimeout
	}

	c := &Consumer{
		id:      uuid.New().String(),
		queue:   queueName,
		handler: handler,
		opts:    options,
		status:  ConsumerActive,
		sem:     semaphore.NewWeighted(int64(options.Concurrency)),
	}
	b.consumers[c.id] = c
	q.consumers = append(q.consumers, c)

	b.dispatchLocked(q)
	b.mu.Unlock()

	return c.id, nil
}

// PauseConsumer halts new dispatch to a consumer without interrupting
// in-flight work.
func (b *Broker) PauseConsumer(id string) error {
	return b.setConsumerStatus(id, ConsumerPaused, "consumer.paused")
}

// ResumeConsumer re-enables dispatch to a paused consumer.
func (b *Broker) ResumeConsumer(id string) error {
	return b.setConsumerStatus(id, ConsumerActive, "consumer.resumed")
}

func (b *Broker) setConsumerStatus(id string, status ConsumerStatus, eventType string) error {
	b.mu.Lock()

	c, ok := b.consumers[id]
	if !ok {
		b.mu.Unlock()
		return &cberrors.ValidationError{Entity: "consumer", ID: id, Message: "not found"}
	}
	if c.status == ConsumerStopped {
		b.mu.Unlock()
		return &cberrors.ValidationError{Entity: "consumer", ID: id, Message: "stopped"}
	}
	c.status = status

	var q *queueState
	if status == ConsumerActive {
		q = b.queues[c.queue]
	}
	if q != nil {
		b.dispatchLocked(q)
	}
	b.mu.Unlock()

	b.emit(eventType, map[string]any{"consumer_id": id, "queue": c.queue})
	return nil
}

// StopConsumer removes a consumer. In-flight messages run to completion
// and their outcome is applied normally; no further dispatch occurs.
func (b *Broker) StopConsumer(id string) error {
	b.mu.Lock()

	c, ok := b.consumers[id]
	if !ok {
		b.mu.Unlock()
		return &cberrors.ValidationError{Entity: "consumer", ID: id, Message: "not found"}
	}
	c.status = ConsumerStopped
	delete(b.consumers, id)

	if q, ok := b.queues[c.queue]; ok {
		for i, qc := range q.consumers {
			if qc.id == id {
				q.consumers = append(q.consumers[:i], q.consumers[i+1:]...)
				break
			}
		}
	}
	b.mu.Unlock()

	b.emit("consumer.stopped", map[string]any{"consumer_id": id, "queue": c.queue})
	return nil
}

// scheduleDispatchLocked arms a timer that re-runs dispatch for a queue.
func (b *Broker) scheduleDispatchLocked(queueName string, d time.Duration) {
	if b.stopped {
		return
	}
	b.clock.AfterFunc(d, func() {
		b.dispatch(queueName)
	})
}

// dispatch runs one dispatch pass for a queue.
func (b *Broker) dispatch(queueName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[queueName]; ok {
		b.dispatchLocked(q)
	}
}

// dispatchLocked matches eligible pending messages to consumer capacity,
// in queue order, honoring the queue rate limit.
func (b *Broker) dispatchLocked(q *queueState) {
	if b.stopped || len(q.consumers) == 0 {
		return
	}

	now := b.clock.Now()
	candidates := b.orderedPendingLocked(q, now)

	for _, m := range candidates {
		if m.expired(now) {
			b.expireLocked(q, m)
			continue
		}

		if b.poison != nil && b.poison.Flagged(m, now) {
			b.deadLetterLocked(q, m, &cberrors.HandlerError{
				Handler: "poison-detector",
				Err:     errPoisonMessage,
			})
			continue
		}

		c := b.pickConsumerLocked(q, m)
		if c == nil {
			continue
		}

		// Reserve a rate slot only once a consumer is committed, so tokens
		// are never burned on undispatchable messages.
		if q.limiter != nil {
			res := q.limiter.ReserveN(now, 1)
			if !res.OK() {
				c.sem.Release(1)
				break
			}
			if wait := res.DelayFrom(now); wait > 0 {
				res.CancelAt(now)
				c.sem.Release(1)
				b.scheduleDispatchLocked(q.name, wait)
				break
			}
		}

		b.startProcessingLocked(q, m, c, now)
	}
}

// orderedPendingLocked returns dispatchable pending messages in queue
// order: (priority, seq) for priority queues, seq (FIFO) otherwise.
// Expired messages are included so the pass can purge them.
func (b *Broker) orderedPendingLocked(q *queueState, now time.Time) []*Message {
	pending := make([]*Message, 0, len(q.messages))
	for _, m := range q.messages {
		if m.Status != StatusPending {
			continue
		}
		if m.expired(now) {
			pending = append(pending, m)
			continue
		}
		if m.eligible(now) {
			pending = append(pending, m)
		}
	}

	byPriority := q.qtype == TypePriority
	sort.Slice(pending, func(i, j int) bool {
		if byPriority && pending[i].Priority != pending[j].Priority {
			return pending[i].Priority < pending[j].Priority
		}
		return pending[i].seq < pending[j].seq
	})
	return pending
}

// pickConsumerLocked finds a consumer with spare capacity, round-robin.
func (b *Broker) pickConsumerLocked(q *queueState, m *Message) *Consumer {
	n := len(q.consumers)
	for i := 0; i < n; i++ {
		c := q.consumers[(q.rr+i)%n]
		if !c.accepts(m) {
			continue
		}
		if !c.sem.TryAcquire(1) {
			continue
		}
		q.rr = (q.rr + i + 1) % n
		return c
	}
	return nil
}

// startProcessingLocked attributes a message to a consumer and launches
// its handler.
func (b *Broker) startProcessingLocked(q *queueState, m *Message, c *Consumer, now time.Time) {
	m.Status = StatusProcessing
	m.Attempts++
	processedAt := now
	m.ProcessedAt = &processedAt
	m.consumerID = c.id
	c.inflight++

	observability.LogDispatch(b.log, q.name, m.ID, c.id, m.Attempts)

	snapshot := *m
	b.handlers.Add(1)
	go b.runHandler(q.name, snapshot, c)
}

// runHandler executes one attempt outside the broker lock, racing the
// handler against the consumer timeout.
func (b *Broker) runHandler(queueName string, msg Message, c *Consumer) {
	defer b.handlers.Done()

	ctx, span := b.spans.StartDispatchSpan(context.Background(), queueName, msg.ID, msg.Attempts)
	start := b.clock.Now()

	done := make(chan error, 1)
	go func() {
		done <- safeHandle(c.handler, ctx, msg, c.id)
	}()

	var err error
	select {
	case err = <-done:
	case <-b.clock.After(c.opts.Timeout):
		err = &cberrors.TimeoutError{Operation: "consumer " + c.id, Timeout: c.opts.Timeout}
	}

	duration := b.clock.Since(start)
	b.metrics.RecordMessageProcessed(ctx, queueName, duration, err)
	b.spans.EndSpanWithError(span, err)

	b.settle(queueName, msg.ID, c, err, duration)
}

// settle applies one attempt's outcome to the stored message.
func (b *Broker) settle(queueName, messageID string, c *Consumer, handlerErr error, duration time.Duration) {
	var callback func()

	b.mu.Lock()
	now := b.clock.Now()

	c.sem.Release(1)
	c.inflight--
	c.totalProc += duration
	c.lastProcessed = now

	q := b.queues[queueName]
	if q == nil {
		b.mu.Unlock()
		return
	}
	m := q.messages[messageID]
	if m == nil {
		b.mu.Unlock()
		return
	}

	if handlerErr == nil {
		c.processed++
		b.completeLocked(q, m, now, duration)
	} else {
		c.failed++
		m.Error = handlerErr.Error()
		if c.opts.ErrorHandler != nil {
			snapshot := *m
			callback = func() { c.opts.ErrorHandler(snapshot, handlerErr) }
		}
		if m.Attempts < m.MaxAttempts {
			b.retryLocked(q, m, now, handlerErr)
		} else {
			b.deadLetterLocked(q, m, handlerErr)
		}
	}

	// Freed capacity may unblock the next pending message.
	b.dispatchLocked(q)
	b.mu.Unlock()

	if callback != nil {
		callback()
	}
}

// completeLocked finishes a message successfully.
func (b *Broker) completeLocked(q *queueState, m *Message, now time.Time, duration time.Duration) {
	m.Status = StatusCompleted
	completedAt := now
	m.CompletedAt = &completedAt
	m.consumerID = ""

	q.completed++
	q.totalProc += duration
	q.procSamples++
	q.completions = append(q.completions, now)

	b.emit("message.completed", map[string]any{
		"message_id": m.ID,
		"queue":      q.name,
		"type":       m.Type,
		"attempts":   m.Attempts,
	})
}

// retryLocked returns a failed message to pending with backoff.
func (b *Broker) retryLocked(q *queueState, m *Message, now time.Time, cause error) {
	m.Status = StatusPending
	m.ProcessedAt = nil
	m.consumerID = ""

	policy := cberrors.BackoffConfig{
		InitialDelay: q.cfg.RetryDelay,
		Multiplier:   q.cfg.BackoffMultiplier,
	}
	if m.Meta.RetryPolicy != nil {
		policy = *m.Meta.RetryPolicy
	}
	delay := cberrors.Backoff(policy, m.Attempts)
	m.Meta.DelayUntil = now.Add(delay)

	observability.LogRetry(b.log, q.name, m.ID, m.Attempts, delay, cause)
	b.scheduleDispatchLocked(q.name, delay)

	b.emit("message.retry", map[string]any{
		"message_id": m.ID,
		"queue":      q.name,
		"type":       m.Type,
		"attempts":   m.Attempts,
		"delay_ms":   delay.Milliseconds(),
		"error":      cause.Error(),
	})
}

// deadLetterLocked settles a message that exhausted its attempts, moving a
// fresh pending copy into the paired dead-letter queue when configured.
func (b *Broker) deadLetterLocked(q *queueState, m *Message, cause error) {
	now := b.clock.Now()
	m.Status = StatusDeadLetter
	m.consumerID = ""
	m.Error = cause.Error()
	q.failed++

	exhausted := &cberrors.RetryExhaustedError{
		MessageID: m.ID,
		Queue:     q.name,
		Attempts:  m.Attempts,
		Err:       cause,
	}
	observability.LogDeadLetter(b.log, q.name, m.ID, m.Attempts, cause)
	b.metrics.RecordDeadLetter(context.Background(), q.name)

	if b.poison != nil {
		b.poison.Record(m, now)
	}

	if b.arch != nil {
		rec := archive.NewRecord(m.ID, q.name, m.Meta.OriginQueue, m.Type, m.Payload, m.Attempts, m.Error, now)
		go func() {
			_ = b.arch.Append(context.Background(), rec)
		}()
	}

	payload := map[string]any{
		"message_id": m.ID,
		"queue":      q.name,
		"type":       m.Type,
		"attempts":   m.Attempts,
		"error":      exhausted.Error(),
	}

	dlqName := q.cfg.DeadLetterQueue
	if dlqName == "" {
		dlqName = DefaultDeadLetterQueue
	}
	if dlqName != NoDeadLetter && dlqName != q.name {
		if dlq, ok := b.queues[dlqName]; ok {
			moved := &Message{
				ID:          uuid.New().String(),
				Queue:       dlqName,
				Type:        m.Type,
				Payload:     m.Payload,
				Priority:    m.Priority,
				CreatedAt:   now,
				MaxAttempts: dlq.cfg.MaxRetries,
				Status:      StatusPending,
				Error:       m.Error,
				Meta: Metadata{
					CorrelationID: m.Meta.CorrelationID,
					CausationID:   m.ID,
					OriginQueue:   q.name,
				},
			}
			b.enqueueLocked(dlq, moved)
			payload["dead_letter_id"] = moved.ID
			b.dispatchLocked(dlq)
		}
	}

	b.emit("message.dead-letter", payload)
}

// expireLocked purges a message whose TTL elapsed before dispatch.
func (b *Broker) expireLocked(q *queueState, m *Message) {
	delete(q.messages, m.ID)
	b.emit("message.expired", map[string]any{
		"message_id": m.ID,
		"queue":      q.name,
		"type":       m.Type,
	})
}

// emit announces a lifecycle event on the bus channel, best-effort and
// never under the broker lock.
func (b *Broker) emit(eventType string, payload map[string]any) {
	if b.chn == nil {
		return
	}
	go func() {
		_ = b.chn.Publish(context.Background(), eventType, payload)
	}()
}

// Message returns a copy of a stored message, for inspection and tests.
func (b *Broker) Message(queueName, messageID string) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queueName]
	if !ok {
		return Message{}, false
	}
	m, ok := q.messages[messageID]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Messages returns copies of a queue's messages with the given status.
func (b *Broker) Messages(queueName string, status Status) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queueName]
	if !ok {
		return nil
	}
	result := make([]Message, 0, len(q.messages))
	for _, m := range q.messages {
		if status == "" || m.Status == status {
			result = append(result, *m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].seq < result[j].seq })
	return result
}

// QueueMetrics returns one queue's metrics.
func (b *Broker) QueueMetrics(name string) (Metrics, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return Metrics{}, &cberrors.ValidationError{Entity: "queue", ID: name, Message: "not found"}
	}
	return q.snapshotMetrics(b.clock.Now()), nil
}

// AllQueueMetrics returns metrics for every queue, sorted by name.
func (b *Broker) AllQueueMetrics() []Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	result := make([]Metrics, 0, len(b.queues))
	for _, q := range b.queues {
		result = append(result, q.snapshotMetrics(now))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ConsumerMetrics returns one consumer's metrics.
func (b *Broker) ConsumerMetrics(id string) (ConsumerMetrics, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.consumers[id]
	if !ok {
		return ConsumerMetrics{}, &cberrors.ValidationError{Entity: "consumer", ID: id, Message: "not found"}
	}
	return c.snapshotMetrics(), nil
}

// AllConsumerMetrics returns metrics for every registered consumer.
func (b *Broker) AllConsumerMetrics() []ConsumerMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]ConsumerMetrics, 0, len(b.consumers))
	for _, c := range b.consumers {
		result = append(result, c.snapshotMetrics())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ConsumerID < result[j].ConsumerID })
	return result
}
