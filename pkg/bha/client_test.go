package bha

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bhascraper/pkg/cache"
	"bhascraper/pkg/config"
	errs "bhascraper/pkg/errors"
	"bhascraper/pkg/logger"
	"bhascraper/pkg/ratelimit"
	"bhascraper/pkg/retry"
	"bhascraper/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRoundTripper intercepts HTTP requests
type mockRoundTripper struct {
	mu       sync.Mutex
	calls    int
	requests []*http.Request
	handler  func(call int, req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.handler(call, req)
}

func (m *mockRoundTripper) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

var testToken = token.BearerToken{Value: "tok-123", CapturedAt: time.Now(), DomainScope: "api09.horseracing.software"}

func testConfig(maxRetries int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Retry.MaxRetries = maxRetries
	cfg.Retry.BaseDelay = 10 * time.Millisecond
	cfg.Retry.Jitter = 0
	cfg.Retry.RequestTimeout = 2 * time.Second
	return cfg
}

func newTestClient(t *testing.T, cfg *config.Config, rt *mockRoundTripper, opts ...Option) (*Client, *sleepRecorder, *logger.TestLogger) {
	t.Helper()
	rec := &sleepRecorder{}
	log := logger.NewTestLogger()
	opts = append([]Option{
		WithTransport(rt),
		WithSleep(rec.sleep),
		WithLimiter(ratelimit.Unlimited{}),
	}, opts...)
	return NewClient(cfg, log, opts...), rec, log
}

func TestFetchRetriesServerErrorsThenSucceeds(t *testing.T) {
	rt := &mockRoundTripper{handler: func(call int, req *http.Request) (*http.Response, error) {
		if call <= 3 {
			return newResponse(500, `{"error":"boom"}`), nil
		}
		return newResponse(200, `{"data":[{"raceId":7}]}`), nil
	}}
	client, rec, _ := newTestClient(t, testConfig(4), rt)

	doc, err := client.Fetch(context.Background(), ResultsRequest(2024, "7"), testToken)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"raceId":7}]}`, string(doc))
	assert.Equal(t, 4, rt.Calls())

	require.Len(t, rec.delays, 3)
	for i := 1; i < len(rec.delays); i++ {
		assert.Greater(t, rec.delays[i], rec.delays[i-1], "delay %d should grow", i)
	}
}

func TestFetchAuthExpiredIsNotRetried(t *testing.T) {
	for _, status := range []int{401, 403} {
		rt := &mockRoundTripper{handler: func(call int, req *http.Request) (*http.Response, error) {
			return newResponse(status, `{"message":"Unauthorized"}`), nil
		}}
		client, rec, _ := newTestClient(t, testConfig(5), rt)

		_, err := client.Fetch(context.Background(), HorseRequest("99"), testToken)
		require.Error(t, err)
		assert.True(t, errs.IsType(err, errs.ErrorTypeAuthExpired), "status %d", status)
		assert.Equal(t, 1, rt.Calls())
		assert.Empty(t, rec.delays)
	}
}

func TestFetchCacheHitMakesNoCalls(t *testing.T) {
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)

	req := RacesRequest(2024, "F1")
	rawURL, err := req.Resolve(DefaultBaseURL)
	require.NoError(t, err)
	key, err := cache.KeyFor(rawURL)
	require.NoError(t, err)
	require.NoError(t, c.Put(key, cache.Document(`{"data":[{"raceId":"R1"}]}`)))

	rt := &mockRoundTripper{handler: func(call int, req *http.Request) (*http.Response, error) {
		return nil, errors.New("network should not be used on a cache hit")
	}}
	client, _, _ := newTestClient(t, testConfig(3), rt, WithCache(c))

	doc, err := client.Fetch(context.Background(), req, token.BearerToken{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"raceId":"R1"}]}`, string(doc))
	assert.Equal(t, 0, rt.Calls())
}

func TestFetchWritesThroughCache(t *testing.T) {
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)

	rt := &mockRoundTripper{handler: func(call int, req *http.Request) (*http.Response, error) {
		return newResponse(200, `{"data":[]}`), nil
	}}
	client, _, _ := newTestClient(t, testConfig(3), rt, WithCache(c))

	_, err = client.Fixtures(context.Background(), testToken, 2024, 3, 1)
	require.NoError(t, err)
	_, err = client.Fixtures(context.Background(), testToken, 2024, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rt.Calls())

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFetchUseCacheFalseBypassesCache(t *testing.T) {
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)

	rt := &mockRoundTripper{handler: func(call int, req *http.Request) (*http.Response, error) {
		return newResponse(200, `{"n":1}`), nil
	}}
	client, _, _ := newTestClient(t, testConfig(3), rt, WithCache(c))

	req := RacecoursesRequest()
	req.UseCache = false
	for i := 0; i < 2; i++ {
		_, err := client.Fetch(context.Background(), req, testToken)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, rt.Calls())
	n, _ := c.Len()
	assert.Equal(t, 0, n)
}

func TestFetchCacheWriteFailureIsBestEffort(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c, err := cache.New(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	rt := &mockRoundTripper{handler: func(call int, req *http.Request) (*http.Response, error) {
		return newResponse(200, `{"ok":true}`), nil
	}}
	client, _, log := newTestClient(t, testConfig(3), rt, WithCache(c))

	doc, err := client.Fetch(context.Background(), HorseRequest("1"), testToken)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(doc))
	assert.True(t, log.HasMessage("Failed to write response to cache"))
}

func TestFetchMalformedResponse(t *testing.T) {
	body := "<html>" + string(bytes.Repeat([]byte("x"), 500)) + "</html>"
	rt := &mockRoundTripper{handler: func(call int, req *http.Request) (*http.Response, error) {
		return newResponse(200, body), nil
	}}
	client, _, log := newTestClient(t, testConfig(3), rt)

	_, err := client.Fetch(context.Background(), HorseRequest("1"), testToken)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeMalformedResponse))
	assert.Equal(t, 1, rt.Calls())

	errorsLogged := log.GetMessagesByLevel("ERROR")
	require.NotEmpty(t, errorsLogged)
	preview := errorsLogged[0].Fields["body_preview"].(string)
	assert.Len(t, preview, 203)
}

func TestFetchClientErrorIsNotRetried(t *testing.T) {
	rt := &mockRoundTripper{handler: func(call int, req *http.Request) (*http.Response, error) {
		return newResponse(404, `{"message":"Not Found"}`), nil
	}}
	client, _, _ := newTestClient(t, testConfig(3), rt)

	_, err := client.Fetch(context.Background(), HorseRequest("missing"), testToken)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeClient))
	assert.Equal(t, 404, err.(*errs.Error).Code)
	assert.Equal(t, 1, rt.Calls())
}

func TestFetchExhausted(t *testing.T) {
	rt := &mockRoundTripper{handler: func(call int, req *http.Request) (*http.Response, error) {
		if call%2 == 0 {
			return newResponse(429, ``), nil
		}
		return newResponse(503, `unavailable`), nil
	}}
	client, rec, _ := newTestClient(t, testConfig(3), rt)

	_, err := client.Fetch(context.Background(), HorseRequest("1"), testToken)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeFetchExhausted))

	var typed *errs.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, 503, typed.Code)
	assert.Equal(t, 3, rt.Calls())
	assert.Len(t, rec.delays, 2)
}

func TestFetchRetriesTransportErrors(t *testing.T) {
	rt := &mockRoundTripper{handler: func(call int, req *http.Request) (*http.Response, error) {
		if call == 1 {
			return nil, errors.New("connection reset by peer")
		}
		return newResponse(200, `[]`), nil
	}}
	client, _, _ := newTestClient(t, testConfig(3), rt)

	doc, err := client.Fetch(context.Background(), RacecoursesRequest(), testToken)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(doc))
	assert.Equal(t, 2, rt.Calls())
}

func TestFetchDeadlineBoundsRetries(t *testing.T) {
	rt := &mockRoundTripper{handler: func(call int, req *http.Request) (*http.Response, error) {
		return newResponse(502, ``), nil
	}}
	cfg := testConfig(10)
	cfg.Retry.BaseDelay = time.Hour
	client, _, _ := newTestClient(t, cfg, rt, WithSleep(retry.Wait))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Fetch(ctx, HorseRequest("1"), testToken)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeFetchTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, rt.Calls())
}

func TestFetchWithoutTokenFailsBeforeNetwork(t *testing.T) {
	rt := &mockRoundTripper{handler: func(call int, req *http.Request) (*http.Response, error) {
		return newResponse(200, `{}`), nil
	}}
	client, _, _ := newTestClient(t, testConfig(3), rt)

	_, err := client.Fetch(context.Background(), HorseRequest("1"), token.BearerToken{})
	assert.True(t, errs.IsType(err, errs.ErrorTypeAuthExpired))
	assert.Equal(t, 0, rt.Calls())
}

func TestFetchSendsHeaders(t *testing.T) {
	rt := &mockRoundTripper{handler: func(call int, req *http.Request) (*http.Response, error) {
		return newResponse(200, `{}`), nil
	}}
	client, _, _ := newTestClient(t, testConfig(3), rt)

	_, err := client.Fixtures(context.Background(), testToken, 2023, 11, 2)
	require.NoError(t, err)

	require.Len(t, rt.requests, 1)
	req := rt.requests[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "Bearer tok-123", req.Header.Get("Authorization"))
	assert.Equal(t, DefaultAccept, req.Header.Get("Accept"))
	assert.Equal(t, "Mozilla/5.0", req.Header.Get("User-Agent"))
	assert.Equal(t, "https://www.britishhorseracing.com", req.Header.Get("Origin"))
	assert.Equal(t, "api09.horseracing.software", req.URL.Host)
	assert.Equal(t, "/bha/v1/fixtures/", req.URL.Path)
	assert.Equal(t, "11", req.URL.Query().Get("month"))
	assert.Equal(t, "2", req.URL.Query().Get("page"))
	assert.Equal(t, "250", req.URL.Query().Get("per_page"))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryAfter(""))
	assert.Equal(t, 30*time.Second, retryAfter("30"))
	assert.Equal(t, time.Duration(0), retryAfter("soon"))
}
