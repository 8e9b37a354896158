package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	errs "bhascraper/pkg/errors"
	"bhascraper/pkg/logger"
	"bhascraper/pkg/retry"
	"bhascraper/pkg/token"
)

// Acquirer captures a fresh bearer token
type Acquirer interface {
	Acquire(ctx context.Context, opts token.Options) (token.BearerToken, error)
}

// TokenStore persists tokens between runs
type TokenStore interface {
	Load(domain string) (token.BearerToken, error)
	Save(tok token.BearerToken) error
	Delete(domain string) error
}

// tokenHolder owns the run's current token. Refresh is single-flight: callers
// holding the same stale token share one capture.
type tokenHolder struct {
	mu        sync.Mutex
	current   token.BearerToken
	refreshes int

	acquirer    Acquirer
	store       TokenStore
	opts        token.Options
	attempts    int
	backoff     time.Duration
	maxRefresh  int
	sleep       retry.SleepFunc
	logger      logger.Logger
	fromStore   bool
	captureRuns int
}

// Get returns the current token
func (h *tokenHolder) Get() token.BearerToken {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Init loads a stored token or captures one
func (h *tokenHolder) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.store != nil {
		tok, err := h.store.Load(h.opts.APIDomain)
		if err == nil && !tok.IsZero() {
			h.current = tok
			h.fromStore = true
			h.logger.InfoWithFields("Using stored bearer token", map[string]interface{}{
				"token": tok.Masked(),
				"age":   time.Since(tok.CapturedAt).Round(time.Second),
			})
			return nil
		}
	}

	tok, err := h.capture(ctx)
	if err != nil {
		return err
	}
	h.current = tok
	return nil
}

// Refresh replaces stale with a new token. If another caller already
// replaced it the newer token is returned without a capture.
func (h *tokenHolder) Refresh(ctx context.Context, stale token.BearerToken) (token.BearerToken, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current.Value != stale.Value {
		return h.current, nil
	}
	if h.refreshes >= h.maxRefresh {
		return token.BearerToken{}, errs.New(errs.ErrorTypeAuthExpired, 0,
			"token still rejected after %d refreshes", h.refreshes)
	}
	h.refreshes++

	h.logger.WarnWithFields("Bearer token rejected, capturing a new one", map[string]interface{}{
		"refresh": h.refreshes,
		"stored":  h.fromStore,
	})
	if h.store != nil && h.fromStore {
		if err := h.store.Delete(h.opts.APIDomain); err != nil {
			h.logger.WithError(err).Debug("Failed to delete stale stored token")
		}
		h.fromStore = false
	}

	tok, err := h.capture(ctx)
	if err != nil {
		return token.BearerToken{}, err
	}
	h.current = tok
	return tok, nil
}

// Stats returns how many times the token was replaced and how many browser
// captures ran
func (h *tokenHolder) Stats() (refreshes, captures int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refreshes, h.captureRuns
}

// capture runs the acquirer up to attempts times. Callers hold h.mu.
func (h *tokenHolder) capture(ctx context.Context) (token.BearerToken, error) {
	var lastErr error
	for attempt := 1; attempt <= h.attempts; attempt++ {
		h.captureRuns++
		tok, err := h.acquirer.Acquire(ctx, h.opts)
		if err == nil {
			h.logger.InfoWithFields("Bearer token captured", map[string]interface{}{
				"token":   tok.Masked(),
				"attempt": attempt,
			})
			h.save(tok)
			return tok, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}

		h.logger.WithError(err).WarnWithFields("Token capture failed", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": h.attempts,
		})
		if attempt < h.attempts {
			if err := h.sleep(ctx, h.backoff*time.Duration(attempt)); err != nil {
				lastErr = errors.Join(lastErr, err)
				break
			}
		}
	}

	if errs.IsType(lastErr, errs.ErrorTypeTokenCapture) {
		return token.BearerToken{}, lastErr
	}
	return token.BearerToken{}, errs.Wrap(errs.ErrorTypeTokenCapture, 0, lastErr, "token capture failed")
}

func (h *tokenHolder) save(tok token.BearerToken) {
	if h.store == nil {
		return
	}
	if err := h.store.Save(tok); err != nil {
		h.logger.WithError(err).Debug("Token not persisted")
	}
}
