// Package fetchpool runs independent API fetches on a bounded set of
// workers. Rate limiting and retries stay inside the Fetcher; the pool only
// bounds concurrency and streams results back.
package fetchpool
