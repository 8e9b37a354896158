package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(3, 200*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Errorf("Expected token %d to be available", i+1)
		}
	}

	if tb.Allow() {
		t.Error("Expected no more tokens to be available")
	}

	time.Sleep(250 * time.Millisecond)
	if !tb.Allow() {
		t.Error("Expected tokens to be refilled after waiting")
	}

	tb.tokens = 0
	tb.Reset()
	if tb.tokens != tb.capacity {
		t.Error("Expected tokens to be reset to capacity")
	}
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucket(1, 100*time.Millisecond)
	tb.Allow()

	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected Wait to block until refill, returned after %v", elapsed)
	}
}

func TestSlidingWindow(t *testing.T) {
	sw := NewSlidingWindow(2, 200*time.Millisecond)

	if !sw.Allow() || !sw.Allow() {
		t.Fatal("Expected first two requests to be allowed")
	}
	if sw.Allow() {
		t.Error("Expected third request inside the window to be denied")
	}

	time.Sleep(250 * time.Millisecond)
	if !sw.Allow() {
		t.Error("Expected request to be allowed after window passed")
	}

	sw.Reset()
	if len(sw.requests) != 0 {
		t.Error("Expected reset to clear recorded requests")
	}
}

func TestSlidingWindowWaitCancelled(t *testing.T) {
	sw := NewSlidingWindow(1, time.Hour)
	sw.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := sw.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestNewSlidingWindowDefault(t *testing.T) {
	if _, ok := New("", 0).(Unlimited); !ok {
		t.Error("Expected zero rpm to be unlimited")
	}

	l := New("", 60)
	sw, ok := l.(*SlidingWindow)
	if !ok {
		t.Fatalf("Expected sliding window, got %T", l)
	}
	if sw.maxRequests != 60 || sw.windowSize != time.Minute {
		t.Errorf("Unexpected window %d/%v", sw.maxRequests, sw.windowSize)
	}
}

func TestNewStrategy(t *testing.T) {
	if _, ok := New("token_bucket", 0).(Unlimited); !ok {
		t.Error("Expected zero rpm to be unlimited")
	}

	l := New("token_bucket", 30)
	tb, ok := l.(*TokenBucket)
	if !ok {
		t.Fatalf("Expected token bucket, got %T", l)
	}
	if tb.capacity != 30 || tb.refillPeriod != time.Minute {
		t.Errorf("Unexpected bucket %d/%v", tb.capacity, tb.refillPeriod)
	}

	if _, ok := New("sliding_window", 30).(*SlidingWindow); !ok {
		t.Errorf("Expected sliding window, got %T", New("sliding_window", 30))
	}
}

func TestUnlimited(t *testing.T) {
	var u Unlimited
	for i := 0; i < 1000; i++ {
		if !u.Allow() {
			t.Fatal("Unlimited denied a request")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := u.Wait(ctx); err != context.Canceled {
		t.Errorf("Expected cancelled context error, got %v", err)
	}
}
