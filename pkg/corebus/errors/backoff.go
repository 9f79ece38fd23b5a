package errors

import (
	"math/rand/v2"
	"time"
)

// BackoffConfig configures exponential retry delays.
type BackoffConfig struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// Multiplier is the factor applied per failed attempt.
	Multiplier float64

	// MaxDelay caps the computed delay. 0 means no cap.
	MaxDelay time.Duration

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64
}

// DefaultBackoff is the standard backoff configuration.
var DefaultBackoff = BackoffConfig{
	InitialDelay: 1 * time.Second,
	Multiplier:   2.0,
	MaxDelay:     5 * time.Minute,
}

// Backoff returns the delay before the next retry of a message that has
// made the given number of attempts (1-based): initial * multiplier^(n-1),
// capped at MaxDelay, with optional jitter.
func Backoff(cfg BackoffConfig, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	initial := cfg.InitialDelay
	if initial <= 0 {
		initial = DefaultBackoff.InitialDelay
	}
	delay := float64(initial)
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = DefaultBackoff.Multiplier
	}
	for i := 1; i < attempts; i++ {
		delay *= multiplier
		if cfg.MaxDelay > 0 && delay >= float64(cfg.MaxDelay) {
			delay = float64(cfg.MaxDelay)
			break
		}
	}

	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.Jitter > 0 {
		delay += delay * cfg.Jitter * (rand.Float64()*2 - 1)
	}

	return time.Duration(delay)
}
