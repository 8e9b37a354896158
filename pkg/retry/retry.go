package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "bhascraper/pkg/errors"
	"bhascraper/pkg/logger"
)

// ErrExhausted is wrapped by Do when every allowed attempt failed
var ErrExhausted = errors.New("retry attempts exhausted")

// Operation is one attempt. attempt is 1-based.
type Operation func(ctx context.Context, attempt int) error

// SleepFunc waits between attempts; tests replace it to record delays
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf decides whether a failed attempt may be retried
	RetryIf func(error) bool
	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, delay time.Duration)
	Sleep   SleepFunc
	Logger  logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Sleep:       Wait,
		Logger:      logger.NewNopLogger(),
	}
}

// DefaultRetryIf retries typed errors whose kind is transient and unknown
// errors, but never context cancellation
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var typed *errs.Error
	if errors.As(err, &typed) {
		return errs.IsRetryable(typed.Type)
	}
	return true
}

// Do runs op until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done. On exhaustion the returned error wraps both
// ErrExhausted and the last attempt's error. When ctx ends during a backoff
// wait the context error is returned wrapped around the last attempt's error.
func Do(ctx context.Context, cfg *Config, op Operation) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Wait
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	var lastErr error
	for attempt := 1; cfg.MaxAttempts <= 0 || attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return joinCtx(err, lastErr)
		}

		err := op(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) {
			return err
		}
		if cfg.MaxAttempts > 0 && attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		log.WithError(err).WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": cfg.MaxAttempts,
		})

		if err := sleep(ctx, delay); err != nil {
			return joinCtx(err, lastErr)
		}
	}

	log.WithError(lastErr).ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
		"attempts": cfg.MaxAttempts,
	})
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, cfg.MaxAttempts, lastErr)
}

func joinCtx(ctxErr, lastErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	return fmt.Errorf("%w (last error: %w)", ctxErr, lastErr)
}

// DoWithResult is Do for operations that produce a value
func DoWithResult[T any](ctx context.Context, cfg *Config, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func(ctx context.Context, attempt int) error {
		v, err := op(ctx, attempt)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
