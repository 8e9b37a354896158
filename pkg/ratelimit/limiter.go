package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter gates outgoing API requests
type Limiter interface {
	// Allow reports whether a request may proceed now, consuming a slot if so
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset forgets all recorded usage
	Reset()
}

// New returns the limiter named by strategy admitting rpm requests per
// minute, or an unlimited one when rpm is not positive. token_bucket lets a full minute's budget go out in a burst; any
// other strategy uses a sliding window.
func New(strategy string, rpm int) Limiter {
	if rpm <= 0 {
		return Unlimited{}
	}
	if strategy == "token_bucket" {
		return NewTokenBucket(rpm, time.Minute)
	}
	return NewSlidingWindow(rpm, time.Minute)
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}

// TokenBucket refills to full capacity once per refill period
type TokenBucket struct {
	capacity     int
	tokens       int
	refillPeriod time.Duration
	lastRefill   time.Time
	mu           sync.Mutex
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(time.Now())
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		tb.mu.Lock()
		d := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if err := sleep(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

func (tb *TokenBucket) refill(now time.Time) {
	if now.Sub(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}

// SlidingWindow admits at most maxRequests within any windowSize span
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates an empty window
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	sw.evict(now)

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return true
	}
	return false
}

func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for !sw.Allow() {
		sw.mu.Lock()
		var d time.Duration
		if len(sw.requests) > 0 {
			d = sw.windowSize - time.Since(sw.requests[0])
		}
		sw.mu.Unlock()

		if err := sleep(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.requests = sw.requests[:0]
}

// evict drops requests that have left the window
func (sw *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		n := copy(sw.requests, sw.requests[i:])
		sw.requests = sw.requests[:n]
	}
}

// sleep waits for d (at least a short poll interval) or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
