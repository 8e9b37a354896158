package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bhascraper/internal/fetchpool"
	"bhascraper/pkg/bha"
	"bhascraper/pkg/checkpoint"
	"bhascraper/pkg/config"
	"bhascraper/pkg/daterange"
	errs "bhascraper/pkg/errors"
	"bhascraper/pkg/logger"
	"bhascraper/pkg/retry"
	"bhascraper/pkg/storage"
	"bhascraper/pkg/token"
)

// Kind and Sink are re-exported so callers only need this package
type (
	Kind = storage.Kind
	Sink = storage.Sink
)

// Fetcher performs one authenticated, cached fetch
type Fetcher = fetchpool.Fetcher

// ErrCheckpointExists is returned when an unfinished run for the same range
// is on disk and neither Resume nor ForceRestart was requested
var ErrCheckpointExists = errors.New("checkpoint exists - use --resume to continue or --force-restart to start fresh")

// Options control a Pipeline
type Options struct {
	Concurrency        int
	PerPage            int
	IncludeHorses      bool
	IncludeRacecourses bool
	SkipFailedUnits    bool
	Fields             Fields

	Capture         token.Options
	CaptureAttempts int
	CaptureBackoff  time.Duration
	// RefreshAttempts caps token replacements after 401/403 within one run
	RefreshAttempts int

	// CheckpointDir enables resumable runs when set
	CheckpointDir string
	Resume        bool
	ForceRestart  bool
}

// OptionsFromConfig maps the pipeline and token sections of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	p := cfg.Pipeline
	return Options{
		Concurrency:        p.Concurrency,
		PerPage:            p.PerPage,
		IncludeHorses:      p.IncludeHorses,
		IncludeRacecourses: p.IncludeRacecourses,
		SkipFailedUnits:    p.SkipFailedUnits,
		Fields: Fields{
			List:        p.ListField,
			FixtureID:   p.FixtureIDField,
			FixtureDate: p.FixtureDateField,
			RaceID:      p.RaceIDField,
			AnimalID:    p.AnimalIDField,
		},
		Capture:         token.OptionsFromConfig(cfg),
		CaptureAttempts: cfg.Token.CaptureAttempts,
		CaptureBackoff:  cfg.Token.CaptureBackoff,
		RefreshAttempts: p.RefreshAttempts,
	}
}

// Summary reports what a run did
type Summary struct {
	checkpoint.Counters
	Range           string        `json:"range"`
	Months          int           `json:"months"`
	MonthsCompleted int           `json:"months_completed"`
	MonthsResumed   int           `json:"months_resumed"`
	TokenRefreshes  int           `json:"token_refreshes"`
	TokenCaptures   int           `json:"token_captures"`
	Duration        time.Duration `json:"duration"`
}

// Observer receives progress from a running Pipeline. All calls are made
// from the goroutine that called Run.
type Observer interface {
	MonthStarted(month string, index, total int)
	MonthDone(month string, counts checkpoint.Counters, done, total int)
	UnitSkipped(kind, id string, err error)
}

type nopObserver struct{}

func (nopObserver) MonthStarted(string, int, int)                   {}
func (nopObserver) MonthDone(string, checkpoint.Counters, int, int) {}
func (nopObserver) UnitSkipped(string, string, error)               {}

// Pipeline walks fixtures, races, results and optionally horses for a date
// range and hands every document to a Sink
type Pipeline struct {
	fetcher  Fetcher
	sink     Sink
	tokens   *tokenHolder
	opts     Options
	observer Observer
	logger   logger.Logger
	now      func() time.Time
}

// Option customises a Pipeline
type Option func(*Pipeline)

// WithTokenStore persists captured tokens and reuses a stored one
func WithTokenStore(s TokenStore) Option {
	return func(p *Pipeline) { p.tokens.store = s }
}

// WithObserver reports month progress and skipped units to o
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithSleep replaces the wait between token capture attempts
func WithSleep(fn retry.SleepFunc) Option {
	return func(p *Pipeline) { p.tokens.sleep = fn }
}

// New creates a Pipeline
func New(fetcher Fetcher, acquirer Acquirer, sink Sink, opts Options, log logger.Logger, options ...Option) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	if sink == nil {
		sink = storage.Discard{}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PerPage <= 0 {
		opts.PerPage = bha.DefaultPerPage
	}
	if opts.CaptureAttempts < 1 {
		opts.CaptureAttempts = 1
	}
	if opts.Fields == (Fields{}) {
		opts.Fields = DefaultFields()
	}

	log = log.WithField("component", "pipeline")
	p := &Pipeline{
		fetcher:  fetcher,
		sink:     sink,
		opts:     opts,
		observer: nopObserver{},
		logger:   log,
		now:      time.Now,
		tokens: &tokenHolder{
			acquirer:   acquirer,
			opts:       opts.Capture,
			attempts:   opts.CaptureAttempts,
			backoff:    opts.CaptureBackoff,
			maxRefresh: opts.RefreshAttempts,
			sleep:      retry.Wait,
			logger:     log,
		},
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Run processes every fixture month touched by r. Months already recorded in
// the checkpoint are skipped when resuming. The returned Summary is valid
// even when err is not nil.
func (p *Pipeline) Run(ctx context.Context, r daterange.Range) (*Summary, error) {
	start := p.now()
	months := Months(r)
	summary := &Summary{Range: r.String(), Months: len(months)}
	defer func() {
		summary.TokenRefreshes, summary.TokenCaptures = p.tokens.Stats()
		summary.Duration = p.now().Sub(start)
	}()

	logger.LogComponentStart(p.logger, "pipeline", map[string]interface{}{
		"range":       r.String(),
		"months":      len(months),
		"concurrency": p.opts.Concurrency,
		"horses":      p.opts.IncludeHorses,
	})

	ckpt, cp, err := p.openCheckpoint(r)
	if err != nil {
		return summary, err
	}

	if err := p.tokens.Init(ctx); err != nil {
		return summary, err
	}

	if p.opts.IncludeRacecourses {
		var counts checkpoint.Counters
		err := p.fetchOne(ctx, storage.KindRacecourses, "all", bha.RacecoursesRequest(), &counts)
		summary.Add(counts)
		if err != nil {
			return summary, err
		}
	}

	seenHorses := make(map[string]bool)
	for i, m := range months {
		if cp != nil && cp.IsMonthDone(m) {
			summary.MonthsResumed++
			p.logger.InfoWithFields("Skipping month completed in an earlier run", map[string]interface{}{
				"month": m.String(),
			})
			continue
		}

		p.observer.MonthStarted(m.String(), i+1, len(months))
		counts, err := p.runMonth(ctx, r, m, seenHorses)
		summary.Add(counts)
		if err != nil {
			p.logger.WithError(err).ErrorWithFields("Run aborted", map[string]interface{}{
				"month": m.String(),
			})
			return summary, fmt.Errorf("month %s: %w", m, err)
		}

		summary.MonthsCompleted++
		switch {
		case ckpt == nil:
		case counts.Skipped > 0:
			// left open so a resumed run retries the skipped units
			p.logger.WarnWithFields("Month finished with skipped units, not checkpointed", map[string]interface{}{
				"month":   m.String(),
				"skipped": counts.Skipped,
			})
		default:
			if err := ckpt.CompleteMonth(cp, m, counts); err != nil {
				p.logger.WithError(err).Warn("Failed to update checkpoint")
			}
		}
		logger.LogRunProgress(p.logger, m.String(), i+1, len(months))
		p.observer.MonthDone(m.String(), counts, i+1, len(months))
	}

	if ckpt != nil {
		if err := ckpt.Delete(); err != nil {
			p.logger.WithError(err).Warn("Failed to delete checkpoint")
		}
	}

	logger.LogMetrics(p.logger, "pipeline", map[string]interface{}{
		"documents":        summary.Documents,
		"skipped":          summary.Skipped,
		"months_completed": summary.MonthsCompleted,
		"months_resumed":   summary.MonthsResumed,
		"duration":         p.now().Sub(start),
	})
	logger.LogComponentStop(p.logger, "pipeline", "completed")
	return summary, nil
}

func (p *Pipeline) openCheckpoint(r daterange.Range) (*checkpoint.Manager, *checkpoint.Checkpoint, error) {
	if p.opts.CheckpointDir == "" {
		return nil, nil, nil
	}

	mgr, err := checkpoint.NewManager(p.opts.CheckpointDir, r, p.logger)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case p.opts.ForceRestart:
		if err := mgr.Backup(); err != nil {
			return nil, nil, err
		}
		if err := mgr.Delete(); err != nil {
			return nil, nil, err
		}
	case mgr.Exists() && !p.opts.Resume:
		return nil, nil, ErrCheckpointExists
	}

	cp, err := mgr.LoadOrCreate(r)
	if err != nil {
		return nil, nil, err
	}
	return mgr, cp, nil
}

type fixtureRef struct {
	id   string
	date time.Time
}

func (p *Pipeline) runMonth(ctx context.Context, r daterange.Range, m checkpoint.Month, seenHorses map[string]bool) (checkpoint.Counters, error) {
	var counts checkpoint.Counters
	f := p.opts.Fields

	fixtures, err := p.fixtures(ctx, r, m, &counts)
	if err != nil {
		return counts, err
	}
	counts.Fixtures = len(fixtures)

	var raceJobs []fetchpool.Job
	for _, fx := range fixtures {
		doc, err := p.fetch(ctx, bha.RacesRequest(fx.date.Year(), fx.id))
		if err := p.settle(storage.KindRaces, fx.id, err, &counts); err != nil {
			return counts, err
		}
		if doc == nil {
			continue
		}
		if err := p.emit(storage.KindRaces, fx.id, doc, &counts); err != nil {
			return counts, err
		}

		items, err := listItems(doc, f.List)
		if err := p.settle(storage.KindRaces, fx.id, err, &counts); err != nil {
			return counts, err
		}
		for _, id := range ids(items, f.RaceID) {
			raceJobs = append(raceJobs, fetchpool.Job{
				Kind:    string(storage.KindResults),
				ID:      id,
				Request: bha.ResultsRequest(fx.date.Year(), id),
			})
		}
	}
	counts.Races = len(raceJobs)

	var horseJobs []fetchpool.Job
	err = p.runJobs(ctx, raceJobs, &counts, func(res fetchpool.Result) error {
		counts.Results++
		if !p.opts.IncludeHorses {
			return nil
		}
		items, err := listItems(res.Document, f.List)
		if err != nil {
			return p.settle(storage.KindResults, res.Job.ID, err, &counts)
		}
		for _, id := range ids(items, f.AnimalID) {
			if seenHorses[id] {
				continue
			}
			seenHorses[id] = true
			horseJobs = append(horseJobs, fetchpool.Job{
				Kind:    string(storage.KindHorses),
				ID:      id,
				Request: bha.HorseRequest(id),
			})
		}
		return nil
	})
	if err != nil {
		return counts, err
	}

	err = p.runJobs(ctx, horseJobs, &counts, func(fetchpool.Result) error {
		counts.Horses++
		return nil
	})
	return counts, err
}

// maxFixturePages bounds paging for one month in case the API ignores page
const maxFixturePages = 100

// fixtures pages through one month and keeps fixtures dated inside r
func (p *Pipeline) fixtures(ctx context.Context, r daterange.Range, m checkpoint.Month, counts *checkpoint.Counters) ([]fixtureRef, error) {
	f := p.opts.Fields
	var out []fixtureRef
	seen := make(map[string]bool)
	listed := make(map[string]bool)

	for page := 1; page <= maxFixturePages; page++ {
		key := fixtureKey(m, page)
		doc, err := p.fetch(ctx, bha.FixturesRequest(m.Year, m.Month, page, p.opts.PerPage))
		if err := p.settle(storage.KindFixtures, key, err, counts); err != nil || doc == nil {
			return out, err
		}
		if err := p.emit(storage.KindFixtures, key, doc, counts); err != nil {
			return out, err
		}

		items, err := listItems(doc, f.List)
		if err := p.settle(storage.KindFixtures, key, err, counts); err != nil || items == nil {
			return out, err
		}

		added := 0
		for _, it := range items {
			id, ok := it.str(f.FixtureID)
			if !ok {
				continue
			}
			if !listed[id] {
				listed[id] = true
				added++
			}
			if seen[id] {
				continue
			}
			date, ok := it.date(f.FixtureDate)
			if !ok {
				p.logger.DebugWithFields("Fixture without a usable date", map[string]interface{}{"fixture_id": id})
				continue
			}
			if !r.Contains(date) {
				continue
			}
			seen[id] = true
			out = append(out, fixtureRef{id: id, date: date})
		}

		if len(items) < p.opts.PerPage {
			return out, nil
		}
		if added == 0 {
			p.logger.WarnWithFields("Fixture page repeated earlier pages, stopping", map[string]interface{}{
				"month": m.String(),
				"page":  page,
			})
			return out, nil
		}
	}

	p.logger.WarnWithFields("Fixture page limit reached", map[string]interface{}{
		"month": m.String(),
		"pages": maxFixturePages,
	})
	return out, nil
}

// runJobs fetches jobs on the pool, emits each document and passes it to
// onDoc. Failed jobs go through settle.
func (p *Pipeline) runJobs(ctx context.Context, jobs []fetchpool.Job, counts *checkpoint.Counters, onDoc func(fetchpool.Result) error) error {
	if len(jobs) == 0 {
		return nil
	}

	results := fetchpool.Run(ctx, p.opts.Concurrency, fetcherFunc(p.fetchWith), p.tokens.Get, p.logger, jobs)
	if err := ctx.Err(); err != nil {
		return err
	}

	var abort error
	for _, res := range results {
		kind := Kind(res.Job.Kind)
		if res.Err != nil {
			if err := p.settle(kind, res.Job.ID, res.Err, counts); err != nil && abort == nil {
				abort = err
			}
			continue
		}
		if abort != nil {
			continue
		}
		if err := p.emit(kind, res.Job.ID, res.Document, counts); err != nil {
			abort = err
			continue
		}
		if err := onDoc(res); err != nil {
			abort = err
		}
	}
	return abort
}

func (p *Pipeline) fetchOne(ctx context.Context, kind Kind, key string, req bha.FetchRequest, counts *checkpoint.Counters) error {
	doc, err := p.fetch(ctx, req)
	if err := p.settle(kind, key, err, counts); err != nil || doc == nil {
		return err
	}
	return p.emit(kind, key, doc, counts)
}

// fetch uses the current token, replacing it when the API rejects it
func (p *Pipeline) fetch(ctx context.Context, req bha.FetchRequest) (bha.Document, error) {
	return p.fetchWith(ctx, req, p.tokens.Get())
}

func (p *Pipeline) fetchWith(ctx context.Context, req bha.FetchRequest, tok token.BearerToken) (bha.Document, error) {
	for {
		doc, err := p.fetcher.Fetch(ctx, req, tok)
		if !errs.IsType(err, errs.ErrorTypeAuthExpired) {
			return doc, err
		}
		next, rerr := p.tokens.Refresh(ctx, tok)
		if rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		tok = next
	}
}

// settle decides whether a failed unit is skipped or aborts the run
func (p *Pipeline) settle(kind Kind, id string, err error, counts *checkpoint.Counters) error {
	if err == nil {
		return nil
	}
	if p.opts.SkipFailedUnits && skippable(err) {
		counts.Skipped++
		logger.LogUnitSkipped(p.logger, string(kind), id, err)
		p.observer.UnitSkipped(string(kind), id, err)
		return nil
	}
	return err
}

func skippable(err error) bool {
	if errs.IsType(err, errs.ErrorTypeAuthExpired) || errs.IsType(err, errs.ErrorTypeTokenCapture) {
		return false
	}
	switch errs.TypeOf(err) {
	case errs.ErrorTypeFetchExhausted, errs.ErrorTypeMalformedResponse, errs.ErrorTypeClient:
		return true
	default:
		return false
	}
}

func (p *Pipeline) emit(kind Kind, key string, doc bha.Document, counts *checkpoint.Counters) error {
	if err := p.sink.Write(kind, key, doc); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	counts.Documents++
	return nil
}

type fetcherFunc func(ctx context.Context, req bha.FetchRequest, tok token.BearerToken) (bha.Document, error)

func (f fetcherFunc) Fetch(ctx context.Context, req bha.FetchRequest, tok token.BearerToken) (bha.Document, error) {
	return f(ctx, req, tok)
}
