package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoisonDetectorThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewPoisonDetector(PoisonConfig{FailureThreshold: 2, Window: time.Hour}, clock)

	m := &Message{Queue: "tasks", Type: "task", Payload: map[string]any{"k": "v"}}
	now := clock.Now()

	assert.False(t, d.Flagged(m, now))
	d.Record(m, now)
	assert.False(t, d.Flagged(m, now))
	d.Record(m, now)
	assert.True(t, d.Flagged(m, now))

	// A different payload has its own fingerprint.
	other := &Message{Queue: "tasks", Type: "task", Payload: map[string]any{"k": "other"}}
	assert.False(t, d.Flagged(other, now))
}

func TestPoisonWindowExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewPoisonDetector(PoisonConfig{FailureThreshold: 2, Window: time.Hour}, clock)

	m := &Message{Queue: "tasks", Type: "task"}
	now := clock.Now()
	d.Record(m, now)
	d.Record(m, now)
	require.True(t, d.Flagged(m, now))

	// Observations age out of the window.
	assert.False(t, d.Flagged(m, now.Add(2*time.Hour)))
}

func TestPoisonFingerprintIgnoresMapOrder(t *testing.T) {
	a := &Message{Queue: "q", Type: "t", Payload: map[string]any{"a": 1, "b": 2, "c": 3}}
	b := &Message{Queue: "q", Type: "t", Payload: map[string]any{"c": 3, "b": 2, "a": 1}}

	assert.Equal(t, fingerprint(a), fingerprint(b))
}

func TestBrokerShortCircuitsPoisonMessages(t *testing.T) {
	b := newTestBroker(t, BrokerConfig{
		Poison: &PoisonConfig{FailureThreshold: 2, Window: time.Hour},
	})
	require.NoError(t, b.CreateQueue("tasks", TypeStandard, Config{
		MaxRetries:      1,
		DeadLetterQueue: NoDeadLetter,
	}))

	var attempts atomic.Int64
	_, err := b.Subscribe("tasks", func(_ context.Context, _ Message) error {
		attempts.Add(1)
		return errors.New("boom")
	})
	require.NoError(t, err)

	payload := map[string]any{"order": "o-1"}

	// Two identical dead-letters flag the fingerprint.
	for i := 0; i < 2; i++ {
		id, err := b.Publish("tasks", "task", payload)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			m, ok := b.Message("tasks", id)
			return ok && m.Status == StatusDeadLetter
		}, 5*time.Second, 10*time.Millisecond)
	}
	require.Equal(t, int64(2), attempts.Load())

	// The third copy is dead-lettered without reaching the handler.
	id, err := b.Publish("tasks", "task", payload)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		m, ok := b.Message("tasks", id)
		return ok && m.Status == StatusDeadLetter
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), attempts.Load())

	m, _ := b.Message("tasks", id)
	assert.Contains(t, m.Error, "poison")
}
