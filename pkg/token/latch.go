package token

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// Request is the metadata of one outgoing browser request
type Request struct {
	URL     string
	Headers map[string]string
}

// latch keeps the first qualifying token it observes and ignores everything
// after that
type latch struct {
	domain string
	now    func() time.Time

	mu       sync.Mutex
	captured bool
	token    BearerToken
	seen     int
	done     chan struct{}
}

func newLatch(domain string, now func() time.Time) *latch {
	return &latch{
		domain: strings.ToLower(domain),
		now:    now,
		done:   make(chan struct{}),
	}
}

// observe inspects one request. It reports whether this call captured the
// token.
func (l *latch) observe(r Request) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seen++
	if l.captured || !l.matchesDomain(r.URL) {
		return false
	}

	value, ok := ParseBearer(authorization(r.Headers))
	if !ok {
		return false
	}

	l.token = BearerToken{Value: value, CapturedAt: l.now().UTC(), DomainScope: l.domain}
	l.captured = true
	close(l.done)
	return true
}

func (l *latch) result() (BearerToken, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token, l.seen
}

func (l *latch) matchesDomain(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == l.domain || strings.HasSuffix(host, "."+l.domain)
}

func authorization(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "authorization") {
			return v
		}
	}
	return ""
}
