package token

import (
	"strings"
	"time"
)

// BearerToken is an immutable snapshot of a captured credential. A refresh
// produces a new value; existing copies are never mutated.
type BearerToken struct {
	Value       string    `json:"value"`
	CapturedAt  time.Time `json:"captured_at"`
	DomainScope string    `json:"domain_scope"`
}

// IsZero reports whether no token has been captured
func (t BearerToken) IsZero() bool {
	return t.Value == ""
}

// Header returns the Authorization header value
func (t BearerToken) Header() string {
	return "Bearer " + t.Value
}

// Age returns how long ago the token was captured
func (t BearerToken) Age(now time.Time) time.Duration {
	return now.Sub(t.CapturedAt)
}

// Masked returns the token with all but its edges hidden, for display
func (t BearerToken) Masked() string {
	if len(t.Value) <= 12 {
		return strings.Repeat("*", len(t.Value))
	}
	return t.Value[:6] + "..." + t.Value[len(t.Value)-4:]
}

// State is a step of the capture state machine
type State int

const (
	StateIdle State = iota
	StateBrowserLaunching
	StatePageLoading
	StateListening
	StateCaptured
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBrowserLaunching:
		return "browser_launching"
	case StatePageLoading:
		return "page_loading"
	case StateListening:
		return "listening"
	case StateCaptured:
		return "captured"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseBearer extracts the credential from an Authorization header value.
// It accepts only the Bearer scheme (case-insensitive) followed by a single
// non-empty credential.
func ParseBearer(header string) (string, bool) {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" || strings.ContainsAny(value, " \t") {
		return "", false
	}
	return value, true
}
