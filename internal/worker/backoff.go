package worker

import "time"

// BackoffConfig contains configuration for exponential backoff after a
// failed read.
type BackoffConfig struct {
	Initial time.Duration // First delay (default: 1 second)
	Max     time.Duration // Delay cap (default: 30 seconds)
}

// DefaultBackoff returns the default backoff configuration.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Initial: 1 * time.Second,
		Max:     30 * time.Second,
	}
}

// Delay calculates the exponential backoff delay for a given attempt
// (1-based).
//
// Formula: delay = initial * 2^(attempt-1)
// Cap: min(delay, max)
//
// Example with default config:
//   - Attempt 1: 1s
//   - Attempt 2: 2s
//   - Attempt 5: 16s
//   - Attempt 6+: 30s
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Stop doubling well before overflow.
	if attempt > 32 {
		return c.Max
	}
	delay := c.Initial * time.Duration(1<<uint(attempt-1))
	if delay > c.Max || delay <= 0 {
		return c.Max
	}
	return delay
}
