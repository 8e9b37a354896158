package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"bhascraper/pkg/config"
)

// BackoffStrategy computes the delay to wait after a failed attempt
type BackoffStrategy interface {
	// NextDelay returns the delay after the given 1-based failed attempt
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff waits BaseDelay × Multiplier^(attempt-1), capped at
// MaxDelay, with optional symmetric jitter
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultExponentialBackoff returns the fetcher's default backoff
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// FromConfig builds an ExponentialBackoff from the retry section of the config
func FromConfig(cfg config.RetryConfig) *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    cfg.BaseDelay,
		MaxDelay:     cfg.MaxDelay,
		Multiplier:   cfg.BackoffFactor,
		JitterFactor: cfg.Jitter,
	}
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Wait sleeps for delay or until ctx is done, whichever comes first
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
