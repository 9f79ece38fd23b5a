package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cberrors "github.com/marrowlabs/corebus/pkg/corebus/errors"
	"github.com/marrowlabs/corebus/pkg/corebus/event"
)

func newTestBroker(t *testing.T, cfg BrokerConfig) *Broker {
	t.Helper()
	b := NewBroker(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Stop(ctx)
	})
	return b
}

func TestPublishAndConsume(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("emails", TypeStandard, Config{}))

	var handled atomic.Int64
	_, err := b.Subscribe("emails", func(_ context.Context, msg Message) error {
		handled.Add(1)
		assert.Equal(t, "welcome", msg.Type)
		assert.Equal(t, "a@example.com", msg.Payload["to"])
		assert.Equal(t, 1, msg.Attempts)
		return nil
	})
	require.NoError(t, err)

	id, err := b.Publish("emails", "welcome", map[string]any{"to": "a@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		m, ok := b.Message("emails", id)
		return ok && m.Status == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(1), handled.Load())

	m, _ := b.Message("emails", id)
	assert.Equal(t, 1, m.Attempts)
	require.NotNil(t, m.CompletedAt)
}

func TestPublishValidation(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("tiny", TypeStandard, Config{MaxSize: 1}))

	_, err := b.Publish("no-such-queue", "x", nil)
	var valErr *cberrors.ValidationError
	require.ErrorAs(t, err, &valErr)

	_, err = b.Publish("tiny", "x", nil)
	require.NoError(t, err)

	// No consumers, so the first message stays live and fills the queue.
	_, err = b.Publish("tiny", "x", nil)
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, err.Error(), "full")
}

func TestCreateQueueValidation(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("emails", TypeStandard, Config{}))

	var valErr *cberrors.ValidationError
	require.ErrorAs(t, b.CreateQueue("emails", TypeStandard, Config{}), &valErr)
	require.ErrorAs(t, b.CreateQueue("", TypeStandard, Config{}), &valErr)
}

func TestSubscribeUnknownQueue(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})

	_, err := b.Subscribe("nope", func(_ context.Context, _ Message) error { return nil })
	var valErr *cberrors.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestPriorityOrdering(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("tasks", TypePriority, Config{}))

	// Enqueue before subscribing so one dispatch pass sees both.
	lowID, err := b.Publish("tasks", "task", nil, WithPriority(PriorityLowest))
	require.NoError(t, err)
	highID, err := b.Publish("tasks", "task", nil, WithPriority(PriorityHighest))
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	_, err = b.Subscribe("tasks", func(_ context.Context, msg Message) error {
		mu.Lock()
		order = append(order, msg.ID)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{highID, lowID}, order)
}

func TestRetryThenDeadLetter(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	b := newTestBroker(t, BrokerConfig{Bus: bus})
	require.NoError(t, b.CreateQueue("dead-letter", TypeStandard, Config{DeadLetterQueue: NoDeadLetter}))
	require.NoError(t, b.CreateQueue("flaky", TypeStandard, Config{
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	}))

	var deadLetterEvents atomic.Int64
	bus.Subscribe(event.Exact("queue.message.dead-letter"), func(_ context.Context, _ event.Event) error {
		deadLetterEvents.Add(1)
		return nil
	})

	var attempts atomic.Int64
	_, err := b.Subscribe("flaky", func(_ context.Context, _ Message) error {
		attempts.Add(1)
		return errors.New("boom")
	})
	require.NoError(t, err)

	id, err := b.Publish("flaky", "task", map[string]any{"n": 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m, ok := b.Message("flaky", id)
		return ok && m.Status == StatusDeadLetter
	}, 5*time.Second, 10*time.Millisecond)

	// Exactly maxRetries attempts, never more.
	assert.Equal(t, int64(2), attempts.Load())
	m, _ := b.Message("flaky", id)
	assert.Equal(t, 2, m.Attempts)
	assert.Contains(t, m.Error, "boom")

	// A corresponding pending copy appears in the paired dead-letter queue.
	require.Eventually(t, func() bool {
		return len(b.Messages("dead-letter", StatusPending)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	moved := b.Messages("dead-letter", StatusPending)[0]
	assert.Equal(t, "task", moved.Type)
	assert.Equal(t, "flaky", moved.Meta.OriginQueue)
	assert.Equal(t, id, moved.Meta.CausationID)
	assert.Equal(t, 0, moved.Attempts)
	assert.Contains(t, moved.Error, "boom")

	require.Eventually(t, func() bool {
		return deadLetterEvents.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPanicHandlerCountsAsFailure(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("tasks", TypeStandard, Config{
		MaxRetries:      1,
		DeadLetterQueue: NoDeadLetter,
	}))

	_, err := b.Subscribe("tasks", func(_ context.Context, _ Message) error {
		panic("handler exploded")
	})
	require.NoError(t, err)

	id, err := b.Publish("tasks", "task", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m, ok := b.Message("tasks", id)
		return ok && m.Status == StatusDeadLetter
	}, 5*time.Second, 10*time.Millisecond)

	m, _ := b.Message("tasks", id)
	assert.Contains(t, m.Error, "handler exploded")
}

func TestConcurrencyBound(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("tasks", TypeStandard, Config{}))

	release := make(chan struct{})
	var peak atomic.Int64
	var current atomic.Int64
	_, err := b.Subscribe("tasks", func(_ context.Context, _ Message) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		current.Add(-1)
		return nil
	}, WithConcurrency(2))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := b.Publish("tasks", "task", nil)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(b.Messages("tasks", StatusProcessing)) == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, b.Messages("tasks", StatusPending), 3)

	close(release)

	require.Eventually(t, func() bool {
		return len(b.Messages("tasks", StatusCompleted)) == 5
	}, 5*time.Second, 10*time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestCompetingConsumersShareThePool(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("tasks", TypeStandard, Config{}))

	var mu sync.Mutex
	seen := make(map[string]int)
	handler := func(name string) Handler {
		return func(_ context.Context, msg Message) error {
			mu.Lock()
			seen[msg.ID]++
			mu.Unlock()
			return nil
		}
	}
	_, err := b.Subscribe("tasks", handler("a"))
	require.NoError(t, err)
	_, err = b.Subscribe("tasks", handler("b"))
	require.NoError(t, err)

	const n = 20
	for i := 0; i < n; i++ {
		_, err := b.Publish("tasks", "task", nil)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(b.Messages("tasks", StatusCompleted)) == n
	}, 5*time.Second, 10*time.Millisecond)

	// Every message was processed exactly once across both consumers.
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, "message %s handled more than once", id)
	}
}

func TestBroadcastQueue(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("announce", TypeBroadcast, Config{}))

	var first, second atomic.Int64
	_, err := b.Subscribe("announce", func(_ context.Context, _ Message) error {
		first.Add(1)
		return nil
	})
	require.NoError(t, err)
	_, err = b.Subscribe("announce", func(_ context.Context, _ Message) error {
		second.Add(1)
		return nil
	})
	require.NoError(t, err)

	_, err = b.Publish("announce", "maintenance", map[string]any{"at": "22:00"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return first.Load() == 1 && second.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Len(t, b.Messages("announce", StatusCompleted), 2)
}

func TestBroadcastRespectsMaxSize(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("announce", TypeBroadcast, Config{MaxSize: 2}))

	// Paused consumers keep the fan-out copies pending.
	for i := 0; i < 3; i++ {
		id, err := b.Subscribe("announce", func(_ context.Context, _ Message) error {
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, b.PauseConsumer(id))
	}

	// Three consumers need three slots, and only two exist.
	var valErr *cberrors.ValidationError
	_, err := b.Publish("announce", "notice", nil)
	require.ErrorAs(t, err, &valErr)
	assert.Empty(t, b.Messages("announce", StatusPending))

	// One copy per consumer still fits a large enough bound.
	require.NoError(t, b.CreateQueue("roomy", TypeBroadcast, Config{MaxSize: 3}))
	for i := 0; i < 3; i++ {
		id, err := b.Subscribe("roomy", func(_ context.Context, _ Message) error {
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, b.PauseConsumer(id))
	}
	_, err = b.Publish("roomy", "notice", nil)
	require.NoError(t, err)
	assert.Len(t, b.Messages("roomy", StatusPending), 3)
}

func TestConsumerFilter(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("tasks", TypeStandard, Config{}))

	var urgent atomic.Int64
	_, err := b.Subscribe("tasks", func(_ context.Context, _ Message) error {
		urgent.Add(1)
		return nil
	}, WithFilter(func(m Message) bool {
		return m.Type == "urgent"
	}))
	require.NoError(t, err)

	urgentID, err := b.Publish("tasks", "urgent", nil)
	require.NoError(t, err)
	routineID, err := b.Publish("tasks", "routine", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m, ok := b.Message("tasks", urgentID)
		return ok && m.Status == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	// The filtered-out message stays pending for another consumer.
	m, ok := b.Message("tasks", routineID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, m.Status)
	assert.Equal(t, int64(1), urgent.Load())
}

func TestPauseResumeConsumer(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("tasks", TypeStandard, Config{}))

	var handled atomic.Int64
	consumerID, err := b.Subscribe("tasks", func(_ context.Context, _ Message) error {
		handled.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.PauseConsumer(consumerID))

	id, err := b.Publish("tasks", "task", nil)
	require.NoError(t, err)

	// Paused consumers receive nothing.
	time.Sleep(100 * time.Millisecond)
	m, _ := b.Message("tasks", id)
	assert.Equal(t, StatusPending, m.Status)
	assert.Equal(t, int64(0), handled.Load())

	require.NoError(t, b.ResumeConsumer(consumerID))

	require.Eventually(t, func() bool {
		m, ok := b.Message("tasks", id)
		return ok && m.Status == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStopConsumer(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("tasks", TypeStandard, Config{}))

	started := make(chan struct{})
	release := make(chan struct{})
	consumerID, err := b.Subscribe("tasks", func(_ context.Context, _ Message) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)

	id, err := b.Publish("tasks", "task", nil)
	require.NoError(t, err)
	<-started

	// Stopping mid-flight: the in-flight message still settles normally.
	require.NoError(t, b.StopConsumer(consumerID))
	close(release)

	require.Eventually(t, func() bool {
		m, ok := b.Message("tasks", id)
		return ok && m.Status == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	// The consumer is gone: new messages stay pending.
	id2, err := b.Publish("tasks", "task", nil)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	m, _ := b.Message("tasks", id2)
	assert.Equal(t, StatusPending, m.Status)

	_, err = b.ConsumerMetrics(consumerID)
	var valErr *cberrors.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestConsumerErrorHandler(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("tasks", TypeStandard, Config{
		MaxRetries:      1,
		DeadLetterQueue: NoDeadLetter,
	}))

	var observed atomic.Value
	_, err := b.Subscribe("tasks", func(_ context.Context, _ Message) error {
		return errors.New("boom")
	}, WithErrorHandler(func(m Message, err error) {
		observed.Store(m.ID + ":" + err.Error())
	}))
	require.NoError(t, err)

	id, err := b.Publish("tasks", "task", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, ok := observed.Load().(string)
		return ok && s == id+":boom"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRateLimit(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("email", TypeStandard, Config{
		RateLimit: &RateLimit{Requests: 2, Window: 2 * time.Second},
	}))

	var handled atomic.Int64
	_, err := b.Subscribe("email", func(_ context.Context, _ Message) error {
		handled.Add(1)
		return nil
	}, WithConcurrency(10))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := b.Publish("email", "send", nil)
		require.NoError(t, err)
	}

	// The burst admits two immediately; the rest wait for refill.
	require.Eventually(t, func() bool {
		return handled.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(2), handled.Load())

	require.Eventually(t, func() bool {
		return handled.Load() == 4
	}, 10*time.Second, 20*time.Millisecond)
}

func TestQueueMetricsSnapshot(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("tasks", TypeStandard, Config{MaxRetries: 1, DeadLetterQueue: NoDeadLetter}))

	_, err := b.Subscribe("tasks", func(_ context.Context, msg Message) error {
		if msg.Type == "bad" {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := b.Publish("tasks", "good", nil)
		require.NoError(t, err)
	}
	_, err = b.Publish("tasks", "bad", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m, err := b.QueueMetrics("tasks")
		return err == nil && m.Completed == 3 && m.Failed == 1
	}, 5*time.Second, 10*time.Millisecond)

	m, err := b.QueueMetrics("tasks")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Size)
	assert.Equal(t, 0, m.Processing)
	assert.Greater(t, m.Throughput, 0.0)

	_, err = b.QueueMetrics("nope")
	var valErr *cberrors.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestConsumerMetricsSnapshot(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{})
	require.NoError(t, b.CreateQueue("tasks", TypeStandard, Config{}))

	consumerID, err := b.Subscribe("tasks", func(_ context.Context, _ Message) error {
		return nil
	})
	require.NoError(t, err)

	_, err = b.Publish("tasks", "task", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m, err := b.ConsumerMetrics(consumerID)
		return err == nil && m.Processed == 1
	}, 5*time.Second, 10*time.Millisecond)

	m, err := b.ConsumerMetrics(consumerID)
	require.NoError(t, err)
	assert.Equal(t, "tasks", m.Queue)
	assert.Equal(t, ConsumerActive, m.Status)
	assert.False(t, m.LastProcessed.IsZero())
}

func TestLifecycleEvents(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	b := newTestBroker(t, BrokerConfig{Bus: bus})
	require.NoError(t, b.CreateQueue("tasks", TypeStandard, Config{}))

	var mu sync.Mutex
	types := make(map[string]int)
	bus.Subscribe(event.Glob("queue.message.*"), func(_ context.Context, evt event.Event) error {
		mu.Lock()
		types[evt.Type]++
		mu.Unlock()
		return nil
	})

	_, err := b.Subscribe("tasks", func(_ context.Context, _ Message) error {
		return nil
	})
	require.NoError(t, err)

	_, err = b.Publish("tasks", "task", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return types["queue.message.published"] == 1 && types["queue.message.completed"] == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPublishAfterStop(t *testing.T) {
	b := NewBroker(BrokerConfig{})
	require.NoError(t, b.CreateQueue("tasks", TypeStandard, Config{}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))

	_, err := b.Publish("tasks", "task", nil)
	var valErr *cberrors.ValidationError
	require.ErrorAs(t, err, &valErr)
}
