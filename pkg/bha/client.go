package bha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bhascraper/pkg/cache"
	"bhascraper/pkg/config"
	errs "bhascraper/pkg/errors"
	"bhascraper/pkg/logger"
	"bhascraper/pkg/ratelimit"
	"bhascraper/pkg/retry"
	"bhascraper/pkg/token"

	"github.com/go-resty/resty/v2"
)

// Document is the opaque JSON payload returned by the API
type Document = cache.Document

// Client is the authenticated fetcher for the vendor API
type Client struct {
	http    *resty.Client
	baseURL string
	perPage int
	cache   *cache.Cache
	limiter ratelimit.Limiter

	maxAttempts    int
	requestTimeout time.Duration
	backoff        retry.BackoffStrategy
	sleep          retry.SleepFunc

	logger logger.Logger
}

// Option customises a Client
type Option func(*Client)

// WithCache enables read-through and write-through caching
func WithCache(c *cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithLimiter replaces the rate limiter
func WithLimiter(l ratelimit.Limiter) Option {
	return func(cl *Client) { cl.limiter = l }
}

// WithTransport replaces the HTTP transport
func WithTransport(rt http.RoundTripper) Option {
	return func(cl *Client) { cl.http.SetTransport(rt) }
}

// WithBackoff replaces the retry backoff strategy
func WithBackoff(b retry.BackoffStrategy) Option {
	return func(cl *Client) { cl.backoff = b }
}

// WithSleep replaces the wait between retry attempts
func WithSleep(fn retry.SleepFunc) Option {
	return func(cl *Client) { cl.sleep = fn }
}

// NewClient creates a Client from the api, retry and rate limit sections of cfg
func NewClient(cfg *config.Config, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	rc := resty.New().
		SetTimeout(cfg.Retry.RequestTimeout).
		SetHeaders(map[string]string{
			"User-Agent": cfg.API.UserAgent,
			"Origin":     cfg.API.Origin,
			"Referer":    cfg.API.Referer,
		})

	c := &Client{
		http:           rc,
		baseURL:        cfg.API.BaseURL,
		perPage:        cfg.Pipeline.PerPage,
		limiter:        ratelimit.New(cfg.RateLimit.Strategy, cfg.RateLimit.RequestsPerMinute),
		maxAttempts:    cfg.Retry.MaxRetries,
		requestTimeout: cfg.Retry.RequestTimeout,
		backoff:        retry.FromConfig(cfg.Retry),
		sleep:          retry.Wait,
		logger:         log.WithField("component", "fetcher"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the document for req. A cached copy is returned without any
// network call when req.UseCache is set. Otherwise the request is sent with
// tok, retried with backoff on transport errors, 429 and 5xx, and a fresh
// document is written through to the cache. ctx bounds the whole call
// including backoff waits.
func (c *Client) Fetch(ctx context.Context, req FetchRequest, tok token.BearerToken) (Document, error) {
	rawURL, err := req.Resolve(c.baseURL)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeClient, 0, err, "invalid request")
	}
	key, err := cache.KeyFor(rawURL)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeClient, 0, err, "invalid request")
	}

	useCache := req.UseCache && c.cache != nil
	if useCache {
		doc, ok, err := c.cache.Get(key)
		if err != nil {
			return nil, err
		}
		if ok {
			c.logger.DebugWithFields("cache hit", map[string]interface{}{"url": rawURL})
			return doc, nil
		}
	}

	if tok.IsZero() {
		return nil, errs.New(errs.ErrorTypeAuthExpired, 0, "no bearer token for %s", rawURL)
	}

	accept := req.Accept
	if accept == "" {
		accept = DefaultAccept
	}

	cfg := &retry.Config{
		MaxAttempts: c.maxAttempts,
		Backoff:     c.backoff,
		Sleep:       c.sleep,
		Logger:      logger.NewNopLogger(),
		RetryIf: func(err error) bool {
			return errs.IsRetryable(errs.TypeOf(err))
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.LogRetry(c.logger, rawURL, attempt, c.maxAttempts, delay, err)
		},
	}

	doc, err := retry.DoWithResult(ctx, cfg, func(ctx context.Context, attempt int) (Document, error) {
		return c.attempt(ctx, rawURL, accept, tok)
	})
	if err != nil {
		return nil, c.classify(ctx, rawURL, err)
	}

	if useCache {
		if err := c.cache.Put(key, doc); err != nil {
			c.logger.WithError(err).WarnWithFields("Failed to write response to cache", map[string]interface{}{
				"url": rawURL,
			})
		}
	}
	return doc, nil
}

// attempt performs one GET and maps the outcome onto the error taxonomy
func (c *Client) attempt(ctx context.Context, rawURL, accept string, tok token.BearerToken) (Document, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.http.R().
		SetContext(attemptCtx).
		SetAuthToken(tok.Value).
		SetHeader("Accept", accept).
		Get(rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WithError(err).DebugWithFields("HTTP request failed", map[string]interface{}{
			"url":      rawURL,
			"duration": time.Since(start),
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, 0, err, "request to %s failed", rawURL)
	}

	status := resp.StatusCode()
	body := resp.Body()
	logger.LogRequest(c.logger, http.MethodGet, rawURL, status, time.Since(start))

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, errs.New(errs.ErrorTypeAuthExpired, status, "token rejected by %s", rawURL)
	case status == http.StatusTooManyRequests:
		logger.LogRateLimit(c.logger, rawURL, retryAfter(resp.Header().Get("Retry-After")))
		return nil, errs.New(errs.ErrorTypeRateLimit, status, "rate limited")
	case status >= 500:
		return nil, errs.New(errs.ErrorTypeServerError, status, "server error: %s", errs.Truncate(body, 200))
	case status >= 400:
		return nil, errs.New(errs.ErrorTypeClient, status, "request rejected: %s", errs.Truncate(body, 200))
	}

	if !json.Valid(body) {
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          rawURL,
			"status":       status,
			"body_preview": errs.Truncate(body, 200),
		})
		return nil, errs.New(errs.ErrorTypeMalformedResponse, status, "response from %s is not valid JSON", rawURL)
	}
	return bytes.Clone(body), nil
}

func (c *Client) classify(ctx context.Context, rawURL string, err error) error {
	var last *errs.Error
	code := 0
	if errors.As(err, &last) {
		code = last.Code
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		return errs.Wrap(errs.ErrorTypeFetchTimeout, code, err, "deadline exceeded fetching %s", rawURL)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("fetch %s cancelled: %w", rawURL, err)
	case errors.Is(err, retry.ErrExhausted):
		c.logger.WithError(err).ErrorWithFields("Retries exhausted", map[string]interface{}{
			"url":         rawURL,
			"attempts":    c.maxAttempts,
			"last_status": code,
		})
		return errs.Wrap(errs.ErrorTypeFetchExhausted, code, err, "gave up on %s after %d attempts", rawURL, c.maxAttempts)
	default:
		return err
	}
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

// Fixtures fetches one page of fixtures with results for a month
func (c *Client) Fixtures(ctx context.Context, tok token.BearerToken, year, month, page int) (Document, error) {
	return c.Fetch(ctx, FixturesRequest(year, month, page, c.perPage), tok)
}

// Races fetches the races of a fixture
func (c *Client) Races(ctx context.Context, tok token.BearerToken, year int, fixtureID string) (Document, error) {
	return c.Fetch(ctx, RacesRequest(year, fixtureID), tok)
}

// Results fetches the result of a race
func (c *Client) Results(ctx context.Context, tok token.BearerToken, year int, raceID string) (Document, error) {
	return c.Fetch(ctx, ResultsRequest(year, raceID), tok)
}

// Horse fetches a horse profile
func (c *Client) Horse(ctx context.Context, tok token.BearerToken, animalID string) (Document, error) {
	return c.Fetch(ctx, HorseRequest(animalID), tok)
}

// Racecourses fetches the racecourse directory
func (c *Client) Racecourses(ctx context.Context, tok token.BearerToken) (Document, error) {
	return c.Fetch(ctx, RacecoursesRequest(), tok)
}

// PerPage returns the fixtures page size this client requests
func (c *Client) PerPage() int {
	if c.perPage <= 0 {
		return DefaultPerPage
	}
	return c.perPage
}
