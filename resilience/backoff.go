package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes jittered exponential delays between retry attempts.
// The zero value is not usable; construct with NewBackoff.
type Backoff struct {
	initial    time.Duration
	multiplier float64
	jitter     time.Duration
	max        time.Duration
}

// BackoffConfig configures a Backoff.
type BackoffConfig struct {
	// InitialDelay is the delay before the first retry.
	// Default: 2 seconds
	InitialDelay time.Duration

	// Multiplier grows the delay each attempt.
	// Default: 2.0
	Multiplier float64

	// Jitter is the upper bound of the uniform random addition applied
	// to every delay to avoid synchronized retry storms.
	// Default: 1 second
	Jitter time.Duration

	// MaxDelay caps the computed delay before jitter.
	// Default: 30 seconds
	MaxDelay time.Duration
}

// NewBackoff creates a backoff schedule.
func NewBackoff(config BackoffConfig) *Backoff {
	// Apply defaults
	if config.InitialDelay <= 0 {
		config.InitialDelay = 2 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.Jitter <= 0 {
		config.Jitter = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}

	return &Backoff{
		initial:    config.InitialDelay,
		multiplier: config.Multiplier,
		jitter:     config.Jitter,
		max:        config.MaxDelay,
	}
}

// Delay returns the wait before retry attempt n (1-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	factor := math.Pow(b.multiplier, float64(attempt-1))
	delay := time.Duration(float64(b.initial) * factor)
	if delay > b.max || delay <= 0 {
		delay = b.max
	}

	// #nosec G404 -- jitter is non-cryptographic timing variance.
	return delay + time.Duration(rand.Int64N(int64(b.jitter)))
}
