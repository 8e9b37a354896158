// Package ratelimit keeps the scraper under the vendor API's request budget.
//
// The fetcher waits on a Limiter before every network attempt; cache hits
// bypass it. New picks the limiter from the configured strategy:
//
//	limiter := ratelimit.New(cfg.RateLimit.Strategy, cfg.RateLimit.RequestsPerMinute)
//	if err := limiter.Wait(ctx); err != nil {
//		return err // ctx cancelled or deadline exceeded
//	}
package ratelimit
