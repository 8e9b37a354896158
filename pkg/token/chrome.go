package token

import (
	"context"
	"fmt"
	"os"
	"sync"

	"bhascraper/pkg/config"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromeBrowser launches Chrome or Chromium through the DevTools protocol
type ChromeBrowser struct {
	Headless  bool
	ExecPath  string
	UserAgent string
}

// NewChromeBrowser configures a ChromeBrowser from the loaded configuration
func NewChromeBrowser(cfg *config.Config) *ChromeBrowser {
	return &ChromeBrowser{
		Headless:  cfg.Token.Headless,
		ExecPath:  cfg.Token.ChromePath,
		UserAgent: cfg.API.UserAgent,
	}
}

func (b *ChromeBrowser) Launch(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.Headless),
		chromedp.DisableGPU,
	)
	if b.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.ExecPath))
	}
	if b.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.UserAgent))
	}
	if os.Geteuid() == 0 {
		opts = append(opts, chromedp.NoSandbox)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// the first Run starts the browser process
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &chromeSession{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		urls:        make(map[network.RequestID]string),
	}, nil
}

type chromeSession struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	mu   sync.Mutex
	urls map[network.RequestID]string
}

// Observe forwards every outgoing request. Headers added by the network
// stack arrive in a separate ExtraInfo event, which is matched back to its
// URL by request id.
func (s *chromeSession) Observe(fn func(Request)) {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			if e.Request == nil {
				return
			}
			s.mu.Lock()
			s.urls[e.RequestID] = e.Request.URL
			s.mu.Unlock()
			fn(Request{URL: e.Request.URL, Headers: flatten(e.Request.Headers)})

		case *network.EventRequestWillBeSentExtraInfo:
			s.mu.Lock()
			u, ok := s.urls[e.RequestID]
			s.mu.Unlock()
			if ok {
				fn(Request{URL: u, Headers: flatten(e.Headers)})
			}
		}
	})
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	return chromedp.Run(runCtx, chromedp.Navigate(url))
}

func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancelTab()
	s.cancelAlloc()
	return err
}

func flatten(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = fmt.Sprint(v)
	}
	return out
}
