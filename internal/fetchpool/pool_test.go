package fetchpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bhascraper/pkg/bha"
	"bhascraper/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	delay    time.Duration
	failIDs  map[string]error
	calls    int32
	inFlight int32
	maxSeen  int32

	mu     sync.Mutex
	tokens []string
}

func (m *mockFetcher) Fetch(ctx context.Context, req bha.FetchRequest, tok token.BearerToken) (bha.Document, error) {
	atomic.AddInt32(&m.calls, 1)
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&m.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&m.maxSeen, seen, n) {
			break
		}
	}

	m.mu.Lock()
	m.tokens = append(m.tokens, tok.Value)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	id := req.PathParams["race_id"]
	if err, ok := m.failIDs[id]; ok {
		return nil, err
	}
	return json.RawMessage(fmt.Sprintf(`{"raceId":%q}`, id)), nil
}

func raceJobs(n int) []Job {
	jobs := make([]Job, n)
	for i := range jobs {
		id := fmt.Sprintf("%d", i)
		jobs[i] = Job{Kind: "results", ID: id, Request: bha.ResultsRequest(2024, id)}
	}
	return jobs
}

func staticToken(v string) TokenFunc {
	return func() token.BearerToken { return token.BearerToken{Value: v} }
}

func TestPoolBasicFunctionality(t *testing.T) {
	fetcher := &mockFetcher{delay: 5 * time.Millisecond}
	pool := New(context.Background(), 3, fetcher, staticToken("tok"), nil)
	pool.Start()

	var results []Result
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for r := range pool.Results() {
			results = append(results, r)
		}
	}()

	for _, job := range raceJobs(10) {
		require.NoError(t, pool.Submit(job))
	}
	pool.Stop()
	wg.Wait()

	require.Len(t, results, 10)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.JSONEq(t, fmt.Sprintf(`{"raceId":%q}`, r.Job.ID), string(r.Document))
	}
	assert.Equal(t, int32(10), atomic.LoadInt32(&fetcher.calls))
	assert.Equal(t, 3, pool.Workers())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	fetcher := &mockFetcher{delay: 10 * time.Millisecond}
	results := Run(context.Background(), 2, fetcher, staticToken("tok"), nil, raceJobs(8))

	assert.Len(t, results, 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&fetcher.maxSeen), int32(2))
}

func TestPoolReportsErrors(t *testing.T) {
	boom := errors.New("boom")
	fetcher := &mockFetcher{failIDs: map[string]error{"3": boom}}
	results := Run(context.Background(), 4, fetcher, staticToken("tok"), nil, raceJobs(5))

	require.Len(t, results, 5)
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			assert.ErrorIs(t, r.Err, boom)
			failed = append(failed, r.Job.ID)
		}
	}
	assert.Equal(t, []string{"3"}, failed)
}

func TestPoolUsesCurrentToken(t *testing.T) {
	var current atomic.Value
	current.Store("first")
	tokens := func() token.BearerToken { return token.BearerToken{Value: current.Load().(string)} }

	fetcher := &mockFetcher{}
	Run(context.Background(), 1, fetcher, tokens, nil, raceJobs(1))
	current.Store("second")
	Run(context.Background(), 1, fetcher, tokens, nil, raceJobs(1))

	assert.Equal(t, []string{"first", "second"}, fetcher.tokens)
}

func TestPoolCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &mockFetcher{delay: 50 * time.Millisecond}

	done := make(chan []Result)
	go func() {
		done <- Run(ctx, 2, fetcher, staticToken("tok"), nil, raceJobs(50))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case results := <-done:
		assert.Less(t, len(results), 50)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}

func TestSubmitAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := New(ctx, 1, &mockFetcher{}, staticToken("tok"), nil)
	cancel()

	// Once the buffer is full only the ctx case can fire
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = pool.Submit(Job{})
	}
	assert.ErrorIs(t, err, ErrStopped)
}
