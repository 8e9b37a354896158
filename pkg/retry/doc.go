// Package retry runs an operation repeatedly with backoff between failed
// attempts.
//
//	cfg := &retry.Config{
//		MaxAttempts: 4,
//		Backoff:     retry.FromConfig(appCfg.Retry),
//	}
//	err := retry.Do(ctx, cfg, func(ctx context.Context, attempt int) error {
//		return fetchOnce(ctx)
//	})
//	if errors.Is(err, retry.ErrExhausted) {
//		// every attempt failed with a transient error
//	}
//
// Typed errors from pkg/errors are retried only when their kind is
// transient (network, rate limit, server error). Context cancellation is
// never retried and a cancelled backoff wait ends the loop immediately.
package retry
