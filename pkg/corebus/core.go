package corebus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/marrowlabs/corebus/pkg/corebus/archive"
	"github.com/marrowlabs/corebus/pkg/corebus/config"
	"github.com/marrowlabs/corebus/pkg/corebus/event"
	"github.com/marrowlabs/corebus/pkg/corebus/observability"
	"github.com/marrowlabs/corebus/pkg/corebus/queue"
)

// Core bundles a bus and a broker wired together: the broker announces
// message, consumer, and job lifecycle on the bus's "queue" channel.
type Core struct {
	Bus    *event.Bus
	Broker *queue.Broker

	arch archive.Store
}

// Option configures Core construction.
type Option func(*coreOptions)

type coreOptions struct {
	logger  *slog.Logger
	clock   clockwork.Clock
	arch    archive.Store
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// WithLogger sets the structured logger for both bus and broker.
func WithLogger(logger *slog.Logger) Option {
	return func(o *coreOptions) {
		o.logger = logger
	}
}

// WithClock injects the clock driving timeouts, backoff, and sweeps.
func WithClock(clock clockwork.Clock) Option {
	return func(o *coreOptions) {
		o.clock = clock
	}
}

// WithArchive sets the dead-letter archive, overriding the configured
// one. Core closes it on Stop.
func WithArchive(store archive.Store) Option {
	return func(o *coreOptions) {
		o.arch = store
	}
}

// WithMetrics sets the metrics recorder for both bus and broker.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *coreOptions) {
		o.metrics = m
	}
}

// WithSpans sets the span manager for both bus and broker.
func WithSpans(s observability.SpanManager) Option {
	return func(o *coreOptions) {
		o.spans = s
	}
}

// New builds a Core from configuration: the bus, the broker, the default
// queue topology, and any queues the "queues" section declares.
func New(cfg config.Config, opts ...Option) (*Core, error) {
	var o coreOptions
	for _, opt := range opts {
		opt(&o)
	}

	arch := o.arch
	if arch == nil {
		var err error
		arch, err = archiveFromConfig(cfg.Sub("archive"))
		if err != nil {
			return nil, err
		}
	}

	bus := event.NewBus(event.BusConfig{
		HistorySize:    cfg.Int("history_size", 0),
		DefaultTimeout: cfg.Duration("default_timeout", 0),
		Clock:          o.clock,
		Logger:         o.logger,
		Metrics:        o.metrics,
		Spans:          o.spans,
	})

	var poison *queue.PoisonConfig
	if pc := cfg.Sub("poison"); pc.Bool("enabled", false) {
		poison = &queue.PoisonConfig{
			FailureThreshold: pc.Int("failure_threshold", 0),
			Window:           pc.Duration("window", 0),
		}
	}

	broker := queue.NewBroker(queue.BrokerConfig{
		Bus:             bus,
		Archive:         arch,
		Poison:          poison,
		Clock:           o.clock,
		Logger:          o.logger,
		Metrics:         o.metrics,
		Spans:           o.spans,
		CleanupInterval: cfg.Duration("cleanup_interval", 0),
		MetricsInterval: cfg.Duration("metrics_interval", 0),
	})

	core := &Core{Bus: bus, Broker: broker, arch: arch}
	if err := core.createTopology(cfg.Sub("queues")); err != nil {
		bus.Close()
		if arch != nil {
			arch.Close()
		}
		return nil, err
	}
	return core, nil
}

// defaultQueue pairs a built-in queue with its type and config.
type defaultQueue struct {
	name  string
	qtype queue.Type
	cfg   queue.Config
}

// defaultTopology is created by New before configured queues, so queue
// sections can override any of these by name.
func defaultTopology() []defaultQueue {
	return []defaultQueue{
		{"dead-letter", queue.TypeStandard, queue.Config{
			MessageRetention: 7 * 24 * time.Hour,
			DeadLetterQueue:  queue.NoDeadLetter,
		}},
		{"default", queue.TypeStandard, queue.Config{}},
		{"priority", queue.TypePriority, queue.Config{}},
		{"delayed", queue.TypeDelayed, queue.Config{}},
		{"email", queue.TypeStandard, queue.Config{
			RateLimit: &queue.RateLimit{Requests: 10, Window: time.Second},
		}},
		{"analytics", queue.TypeStandard, queue.Config{
			Concurrency: 10,
		}},
		{"notifications", queue.TypePriority, queue.Config{}},
	}
}

// createTopology creates the default queues, then the configured ones.
// A configured section whose name matches a default replaces it.
func (c *Core) createTopology(queues config.Config) error {
	configured := make(map[string]bool)
	for _, name := range queues.Keys() {
		configured[name] = true
	}

	for _, dq := range defaultTopology() {
		if configured[dq.name] {
			continue
		}
		if err := c.Broker.CreateQueue(dq.name, dq.qtype, dq.cfg); err != nil {
			return fmt.Errorf("create queue %q: %w", dq.name, err)
		}
	}

	for _, name := range queues.Keys() {
		section := queues.Sub(name)
		qtype, qcfg := queueFromConfig(section)
		if err := c.Broker.CreateQueue(name, qtype, qcfg); err != nil {
			return fmt.Errorf("create queue %q: %w", name, err)
		}
	}
	return nil
}

// queueFromConfig reads one queue section. Missing keys fall through to
// the broker's documented defaults.
func queueFromConfig(section config.Config) (queue.Type, queue.Config) {
	qtype := queue.Type(section.String("type", string(queue.TypeStandard)))
	cfg := queue.Config{
		MaxSize:           section.Int("max_size", 0),
		MaxRetries:        section.Int("max_retries", 0),
		RetryDelay:        section.Duration("retry_delay", 0),
		BackoffMultiplier: section.Float("backoff_multiplier", 0),
		VisibilityTimeout: section.Duration("visibility_timeout", 0),
		MessageRetention:  section.Duration("message_retention", 0),
		Concurrency:       section.Int("concurrency", 0),
		DeadLetterQueue:   section.String("dead_letter_queue", ""),
	}
	if rl := section.Sub("rate_limit"); rl.Has("requests") {
		cfg.RateLimit = &queue.RateLimit{
			Requests: rl.Int("requests", 0),
			Window:   rl.Duration("window", time.Second),
		}
	}
	return qtype, cfg
}

// archiveFromConfig builds the configured dead-letter archive. No section
// or driver "none" disables archiving.
func archiveFromConfig(section config.Config) (archive.Store, error) {
	switch driver := section.String("driver", "none"); driver {
	case "none":
		return nil, nil
	case "memory":
		return archive.NewMemoryStore(), nil
	case "sqlite":
		path := section.String("path", "")
		if path == "" {
			return nil, fmt.Errorf("archive: sqlite driver requires a path")
		}
		return archive.NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("archive: unknown driver %q", driver)
	}
}

// Start launches the broker's housekeeping sweeps.
func (c *Core) Start(ctx context.Context) error {
	return c.Broker.Start(ctx)
}

// Stop drains the broker, closes the bus, and releases the archive.
func (c *Core) Stop(ctx context.Context) error {
	err := c.Broker.Stop(ctx)
	c.Bus.Close()
	if c.arch != nil {
		if cerr := c.arch.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
