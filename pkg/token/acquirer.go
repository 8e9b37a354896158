package token

import (
	"context"
	"errors"
	"sync"
	"time"

	"bhascraper/pkg/config"
	errs "bhascraper/pkg/errors"
	"bhascraper/pkg/logger"
)

var (
	// ErrLaunch is wrapped by capture errors caused by the browser failing to start
	ErrLaunch = errors.New("browser launch failed")
	// ErrObservationTimeout is wrapped when no qualifying request was seen in time
	ErrObservationTimeout = errors.New("no bearer token observed")
)

// acquireMu keeps at most one capture in flight per process
var acquireMu sync.Mutex

// Browser starts browser sessions
type Browser interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is one live browser page. Observe must be called before Navigate;
// fn may be invoked from any goroutine until Close returns.
type Session interface {
	Observe(fn func(Request))
	Navigate(ctx context.Context, url string) error
	Close() error
}

// Options parameterise one capture
type Options struct {
	TargetURL          string
	APIDomain          string
	PageTimeout        time.Duration
	ObservationTimeout time.Duration
}

// OptionsFromConfig builds capture options from the loaded configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TargetURL:          cfg.API.TokenURL,
		APIDomain:          cfg.API.APIDomain,
		PageTimeout:        cfg.Token.PageTimeout,
		ObservationTimeout: cfg.Token.ObservationTimeout,
	}
}

// Acquirer captures bearer tokens by watching a browser's outgoing requests
type Acquirer struct {
	browser Browser
	logger  logger.Logger
	now     func() time.Time

	// OnTransition, when set, is called for every state change
	OnTransition func(from, to State)

	mu    sync.Mutex
	state State
}

// NewAcquirer creates an Acquirer driving browser
func NewAcquirer(browser Browser, log logger.Logger) *Acquirer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Acquirer{
		browser: browser,
		logger:  log.WithField("component", "token"),
		now:     time.Now,
	}
}

// State returns the state of the most recent capture
func (a *Acquirer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Acquirer) transition(to State) {
	a.mu.Lock()
	from := a.state
	a.state = to
	a.mu.Unlock()

	a.logger.DebugWithFields("token capture state", map[string]interface{}{
		"from": from.String(),
		"to":   to.String(),
	})
	if a.OnTransition != nil {
		a.OnTransition(from, to)
	}
}

// Acquire launches a browser, loads opts.TargetURL and returns the first
// bearer token sent to opts.APIDomain. Navigation errors are tolerated since
// background requests often carry the token before the page settles. The
// browser session is closed before Acquire returns.
func (a *Acquirer) Acquire(ctx context.Context, opts Options) (BearerToken, error) {
	acquireMu.Lock()
	defer acquireMu.Unlock()

	a.mu.Lock()
	a.state = StateIdle
	a.mu.Unlock()
	a.transition(StateBrowserLaunching)

	sess, err := a.browser.Launch(ctx)
	if err != nil {
		a.transition(StateFailed)
		return BearerToken{}, errs.Wrap(errs.ErrorTypeTokenCapture, 0, errors.Join(ErrLaunch, err), "failed to launch browser")
	}
	defer func() {
		if err := sess.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close browser session")
		}
	}()

	l := newLatch(opts.APIDomain, a.now)
	sess.Observe(func(r Request) {
		if l.observe(r) {
			a.logger.DebugWithFields("bearer token observed", map[string]interface{}{"url": r.URL})
		}
	})

	a.transition(StatePageLoading)
	navCtx, cancelNav := context.WithTimeout(ctx, opts.PageTimeout)
	defer cancelNav()

	navDone := make(chan error, 1)
	go func() {
		navDone <- sess.Navigate(navCtx, opts.TargetURL)
	}()

	select {
	case <-l.done:
		a.transition(StateListening)
		return a.captured(l)
	case err := <-navDone:
		if err != nil {
			a.logger.WithError(err).WarnWithFields("Navigation did not complete, still listening", map[string]interface{}{
				"url": opts.TargetURL,
			})
		}
	case <-ctx.Done():
		a.transition(StateFailed)
		return BearerToken{}, errs.Wrap(errs.ErrorTypeTokenCapture, 0, ctx.Err(), "token capture cancelled during page load")
	}

	a.transition(StateListening)
	timer := time.NewTimer(opts.ObservationTimeout)
	defer timer.Stop()

	select {
	case <-l.done:
		return a.captured(l)
	case <-timer.C:
		a.transition(StateFailed)
		_, seen := l.result()
		return BearerToken{}, errs.Wrap(errs.ErrorTypeTokenCapture, 0, ErrObservationTimeout,
			"no bearer token for %s within %s (%d requests observed)", opts.APIDomain, opts.ObservationTimeout, seen)
	case <-ctx.Done():
		a.transition(StateFailed)
		return BearerToken{}, errs.Wrap(errs.ErrorTypeTokenCapture, 0, ctx.Err(), "token capture cancelled")
	}
}

func (a *Acquirer) captured(l *latch) (BearerToken, error) {
	tok, seen := l.result()
	a.transition(StateCaptured)
	a.logger.InfoWithFields("Bearer token captured", map[string]interface{}{
		"domain":   tok.DomainScope,
		"observed": seen,
		"token":    tok.Masked(),
	})
	return tok, nil
}
