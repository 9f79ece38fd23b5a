package event

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	cberrors "github.com/marrowlabs/corebus/pkg/corebus/errors"
	"github.com/marrowlabs/corebus/pkg/corebus/observability"
)

// ErrorEventType is the type of the observability-only event emitted when a
// handler without its own ErrorHandler fails.
const ErrorEventType = "event-error"

// BusConfig configures bus behavior.
type BusConfig struct {
	// HistorySize bounds the retained event history.
	// Default: 0 (history disabled)
	HistorySize int

	// DefaultTimeout bounds handler executions without their own timeout.
	// Default: 30s
	DefaultTimeout time.Duration

	// Clock drives handler timeouts and request deadlines.
	// Default: the real clock
	Clock clockwork.Clock

	// Logger receives structured diagnostics. Nil disables logging.
	Logger *slog.Logger

	// Metrics records bus instruments. Nil uses NoopMetrics.
	Metrics observability.MetricsRecorder

	// Spans records publish spans. Nil uses NoopSpanManager.
	Spans observability.SpanManager
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	DefaultTimeout: 30 * time.Second,
}

// Bus is an in-process pub/sub event bus with pattern subscriptions,
// bounded history, and per-handler failure isolation.
type Bus struct {
	cfg   BusConfig
	clock clockwork.Clock

	mu       sync.RWMutex
	handlers map[HandlerID]*handlerEntry
	seq      uint64

	history *History // nil when disabled

	closed atomic.Bool

	statsMu     sync.Mutex
	published   int64
	handled     int64
	failed      int64
	handlerErrs int64
	totalHandle time.Duration
}

// NewBus creates a new bus.
func NewBus(cfg BusConfig) *Bus {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultBusConfig.DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}

	b := &Bus{
		cfg:      cfg,
		clock:    cfg.Clock,
		handlers: make(map[HandlerID]*handlerEntry),
	}
	if cfg.HistorySize > 0 {
		b.history = NewHistory(cfg.HistorySize)
	}
	return b
}

// Publish assigns the event's identity if missing, records it in history,
// and fans out to all handlers whose pattern matches the event type. It
// returns once every invoked handler has settled; handler failures are
// isolated and never surface here.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return &cberrors.ValidationError{Entity: "bus", Message: "closed"}
	}

	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = b.clock.Now()
	}
	if evt.Meta.CorrelationID == "" {
		evt.Meta.CorrelationID = evt.ID
	}

	ctx, span := b.cfg.Spans.StartPublishSpan(ctx, evt.Type, evt.ID)
	defer b.cfg.Spans.EndSpanWithError(span, nil)

	if b.history != nil {
		b.history.Append(evt)
	}

	b.statsMu.Lock()
	b.published++
	b.statsMu.Unlock()
	b.cfg.Metrics.RecordEventPublished(ctx, evt.Type)
	observability.LogEventPublished(b.cfg.Logger, evt.Type, evt.Source, evt.ID)

	b.fanout(ctx, evt, true)
	return nil
}

// Subscribe registers a handler for every event whose type matches the
// pattern and returns its id.
func (b *Bus) Subscribe(pattern Pattern, fn HandlerFunc, opts ...HandlerOption) HandlerID {
	entry := &handlerEntry{
		id:      HandlerID(uuid.New().String()),
		pattern: pattern,
		fn:      fn,
	}
	for _, opt := range opts {
		opt(&entry.opts)
	}
	if entry.opts.Timeout <= 0 {
		entry.opts.Timeout = b.cfg.DefaultTimeout
	}

	b.mu.Lock()
	b.seq++
	entry.seq = b.seq
	b.handlers[entry.id] = entry
	b.mu.Unlock()

	return entry.id
}

// Unsubscribe removes a handler. It returns false for an unknown id, so a
// second call on the same id reports false.
func (b *Bus) Unsubscribe(id HandlerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.handlers[id]; !ok {
		return false
	}
	delete(b.handlers, id)
	return true
}

// Close stops the bus. In-flight fan-outs complete; further publishes fail.
func (b *Bus) Close() error {
	b.closed.CompareAndSwap(false, true)
	return nil
}

// matching returns the handlers for an event type, sorted by descending
// priority weight with registration order as tiebreak.
func (b *Bus) matching(eventType string) []*handlerEntry {
	b.mu.RLock()
	entries := make([]*handlerEntry, 0, len(b.handlers))
	for _, e := range b.handlers {
		if e.pattern.Matches(eventType) {
			entries = append(entries, e)
		}
	}
	b.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].opts.PriorityWeight != entries[j].opts.PriorityWeight {
			return entries[i].opts.PriorityWeight > entries[j].opts.PriorityWeight
		}
		return entries[i].seq < entries[j].seq
	})
	return entries
}

// fanout delivers the event to all matching handlers. Handlers are started
// in descending priority order but run independently; fanout returns when
// all of them have settled. emitErrors guards against event-error
// recursion.
func (b *Bus) fanout(ctx context.Context, evt Event, emitErrors bool) {
	entries := b.matching(evt.Type)

	var wg sync.WaitGroup
	var anyFailed atomic.Bool
	for _, entry := range entries {
		if entry.opts.Filter != nil && !entry.opts.Filter(evt) {
			continue
		}
		wg.Add(1)
		go func(e *handlerEntry) {
			defer wg.Done()
			if err := b.runHandler(ctx, e, evt, emitErrors); err != nil {
				anyFailed.Store(true)
			}
		}(entry)
	}
	wg.Wait()

	if anyFailed.Load() {
		b.statsMu.Lock()
		b.failed++
		b.statsMu.Unlock()
	}
}

// runHandler races one handler against its timeout and absorbs its failure.
func (b *Bus) runHandler(ctx context.Context, entry *handlerEntry, evt Event, emitErrors bool) error {
	start := b.clock.Now()

	done := make(chan error, 1)
	go func() {
		done <- safeCall(entry.fn, ctx, evt, entry.id)
	}()

	var err error
	select {
	case err = <-done:
	case <-b.clock.After(entry.opts.Timeout):
		err = &cberrors.TimeoutError{
			Operation: "handler " + string(entry.id),
			Timeout:   entry.opts.Timeout,
		}
	case <-ctx.Done():
		err = ctx.Err()
	}

	duration := b.clock.Since(start)
	b.statsMu.Lock()
	b.handled++
	b.totalHandle += duration
	if err != nil {
		b.handlerErrs++
	}
	b.statsMu.Unlock()
	b.cfg.Metrics.RecordEventHandled(ctx, evt.Type, duration, err)

	if err == nil {
		return nil
	}

	if entry.opts.ErrorHandler != nil {
		entry.opts.ErrorHandler(evt, err)
		return err
	}

	observability.LogHandlerError(b.cfg.Logger, evt.Type, string(entry.id), err)
	if emitErrors {
		b.emitEventError(ctx, evt, entry.id, err)
	}
	return err
}

// emitEventError publishes the observability-only event-error. Failures of
// its own handlers are not re-emitted.
func (b *Bus) emitEventError(ctx context.Context, evt Event, handlerID HandlerID, cause error) {
	errEvt := New(ErrorEventType, "bus", map[string]any{
		"event_id":   evt.ID,
		"event_type": evt.Type,
		"handler_id": string(handlerID),
		"error":      cause.Error(),
	},
		WithCategory(CategoryError),
		WithCausationID(evt.ID),
		WithCorrelationID(evt.Meta.CorrelationID),
	)
	errEvt.Timestamp = b.clock.Now()

	if b.history != nil {
		b.history.Append(errEvt)
	}
	b.fanout(ctx, errEvt, false)
}

// BusMetrics is a point-in-time snapshot of bus counters.
type BusMetrics struct {
	// Published is the number of events accepted by Publish.
	Published int64

	// Handled is the number of handler executions.
	Handled int64

	// Failed is the number of published events with at least one failed
	// handler.
	Failed int64

	// HandlerErrors is the number of individual handler failures.
	HandlerErrors int64

	// AvgHandleTime is the running average handler execution time.
	AvgHandleTime time.Duration
}

// Metrics returns a snapshot of the bus counters.
func (b *Bus) Metrics() BusMetrics {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	m := BusMetrics{
		Published:     b.published,
		Handled:       b.handled,
		Failed:        b.failed,
		HandlerErrors: b.handlerErrs,
	}
	if b.handled > 0 {
		m.AvgHandleTime = b.totalHandle / time.Duration(b.handled)
	}
	return m
}

// History queries the bounded event history. It returns nil when history is
// disabled.
func (b *Bus) History(filter HistoryFilter) []Event {
	if b.history == nil {
		return nil
	}
	return b.history.Query(filter)
}
