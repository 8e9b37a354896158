// Package pipeline drives a fetch run over a date range.
//
// The range is bucketed into (year, month) pairs. For each month the
// fixtures list is paged until a short page, fixtures dated outside the
// range are dropped, then races are fetched per fixture, results per race
// on a bounded worker pool, and optionally each horse once per run. Every
// document is handed to a Sink with its kind and key.
//
// A single bearer token is shared by the whole run. When the API rejects it
// the first caller to notice captures a new one and everyone else picks it
// up. Units that fail with an exhausted fetch, a malformed body or a client
// error are skipped when SkipFailedUnits is set; anything else aborts.
package pipeline
