package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{
			name: "validation is permanent",
			err:  &ValidationError{Entity: "queue", ID: "emails", Message: "not found"},
			want: CategoryPermanent,
		},
		{
			name: "retry exhausted is permanent",
			err:  &RetryExhaustedError{MessageID: "m1", Queue: "emails", Attempts: 3, Err: errors.New("boom")},
			want: CategoryPermanent,
		},
		{
			name: "timeout is transient",
			err:  &TimeoutError{Operation: "handler h1", Timeout: time.Second},
			want: CategoryTransient,
		},
		{
			name: "request timeout is transient",
			err:  &RequestTimeoutError{Target: "inventory", Action: "reserve", Timeout: 5 * time.Second},
			want: CategoryTransient,
		},
		{
			name: "handler error follows its cause",
			err:  &HandlerError{Handler: "h1", Err: &ValidationError{Entity: "payload", Message: "bad"}},
			want: CategoryPermanent,
		},
		{
			name: "unknown error is transient",
			err:  errors.New("connection reset"),
			want: CategoryTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.err))
		})
	}
}

func TestCategorizeWrapped(t *testing.T) {
	inner := &ValidationError{Entity: "queue", Message: "full"}
	wrapped := fmt.Errorf("publish: %w", inner)

	assert.Equal(t, CategoryPermanent, Categorize(wrapped))
	assert.False(t, IsRetryable(wrapped))
}

func TestHandlerErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &HandlerError{Handler: "h1", Err: cause}

	require.ErrorIs(t, err, cause)
}

func TestRetryExhaustedUnwrap(t *testing.T) {
	cause := &TimeoutError{Operation: "consumer c1", Timeout: time.Second}
	err := &RetryExhaustedError{MessageID: "m1", Queue: "emails", Attempts: 3, Err: cause}

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, time.Second, timeout.Timeout)
}

func TestBackoffGrowth(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 2.0}

	assert.Equal(t, 1*time.Second, Backoff(cfg, 1))
	assert.Equal(t, 2*time.Second, Backoff(cfg, 2))
	assert.Equal(t, 4*time.Second, Backoff(cfg, 3))
	assert.Equal(t, 8*time.Second, Backoff(cfg, 4))
}

func TestBackoffCap(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 10.0, MaxDelay: 5 * time.Second}

	assert.Equal(t, 5*time.Second, Backoff(cfg, 3))
}

func TestBackoffDefaults(t *testing.T) {
	// Zero config falls back to the documented defaults.
	d := Backoff(BackoffConfig{}, 1)
	assert.Equal(t, DefaultBackoff.InitialDelay, d)

	// Attempts below 1 behave like the first attempt.
	assert.Equal(t, d, Backoff(BackoffConfig{}, 0))
}

func TestBackoffJitter(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 2.0, Jitter: 0.5}

	for i := 0; i < 50; i++ {
		d := Backoff(cfg, 2)
		assert.GreaterOrEqual(t, d, 1*time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}
