package fetchpool

import (
	"context"
	"errors"
	"time"

	"bhascraper/pkg/bha"
	"bhascraper/pkg/logger"
	"bhascraper/pkg/token"

	"golang.org/x/sync/errgroup"
)

// ErrStopped is returned by Submit once the pool is shutting down
var ErrStopped = errors.New("fetch pool is shutting down")

// Job is a single fetch task. Kind and ID travel back untouched in the Result.
type Job struct {
	Kind    string
	ID      string
	Request bha.FetchRequest
}

// Result is the outcome of a Job
type Result struct {
	Job      Job
	Document bha.Document
	Err      error
	Duration time.Duration
}

// Fetcher performs one authenticated fetch
type Fetcher interface {
	Fetch(ctx context.Context, req bha.FetchRequest, tok token.BearerToken) (bha.Document, error)
}

// TokenFunc returns the token to use for the next fetch
type TokenFunc func() token.BearerToken

// Pool runs fetch jobs on a fixed number of workers
type Pool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	workers     errgroup.Group
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     Fetcher
	tokens      TokenFunc
	logger      logger.Logger
}

// New creates a pool bound to ctx. Cancelling ctx stops the workers after
// their current fetch.
func New(ctx context.Context, numWorkers int, fetcher Fetcher, tokens TokenFunc, log logger.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		fetcher:     fetcher,
		tokens:      tokens,
		logger:      log.WithField("component", "fetch_pool"),
	}
}

// Start launches the workers
func (p *Pool) Start() {
	p.logger.DebugWithFields("Starting fetch pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})

	for i := 0; i < p.numWorkers; i++ {
		id := i
		p.workers.Go(func() error {
			p.worker(id)
			return nil
		})
	}
}

// Stop closes the queue, waits for in-flight jobs and closes Results
func (p *Pool) Stop() {
	close(p.jobQueue)
	_ = p.workers.Wait()
	close(p.resultQueue)
	p.cancel()

	p.logger.Debug("Fetch pool stopped")
}

// Submit queues a job, blocking while the queue is full
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return ErrStopped
	}
}

// Results streams job outcomes; it is closed by Stop
func (p *Pool) Results() <-chan Result {
	return p.resultQueue
}

// QueueSize returns the number of queued jobs not yet picked up
func (p *Pool) QueueSize() int {
	return len(p.jobQueue)
}

// Workers returns the configured worker count
func (p *Pool) Workers() int {
	return p.numWorkers
}

func (p *Pool) worker(id int) {
	for job := range p.jobQueue {
		select {
		case <-p.ctx.Done():
			p.logger.DebugWithFields("Worker stopping - context cancelled", map[string]interface{}{
				"worker_id": id,
			})
			return
		default:
		}

		result := p.process(job, id)

		select {
		case p.resultQueue <- result:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) process(job Job, workerID int) Result {
	start := time.Now()
	doc, err := p.fetcher.Fetch(p.ctx, job.Request, p.tokens())
	result := Result{Job: job, Document: doc, Err: err, Duration: time.Since(start)}

	fields := map[string]interface{}{
		"worker_id": workerID,
		"kind":      job.Kind,
		"id":        job.ID,
		"duration":  result.Duration,
	}
	if err != nil {
		p.logger.WithError(err).DebugWithFields("Worker fetch failed", fields)
	} else {
		p.logger.DebugWithFields("Worker fetch completed", fields)
	}
	return result
}

// Run submits jobs to a fresh pool and collects every result. Results come
// back in completion order.
func Run(ctx context.Context, numWorkers int, fetcher Fetcher, tokens TokenFunc, log logger.Logger, jobs []Job) []Result {
	p := New(ctx, numWorkers, fetcher, tokens, log)
	p.Start()

	go func() {
		defer p.Stop()
		for _, job := range jobs {
			if err := p.Submit(job); err != nil {
				return
			}
		}
	}()

	results := make([]Result, 0, len(jobs))
	for r := range p.Results() {
		results = append(results, r)
	}
	return results
}
