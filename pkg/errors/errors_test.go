package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	withCode := New(ErrorTypeAuthExpired, 401, "token rejected")
	assert.Equal(t, "auth_expired error (code 401): token rejected", withCode.Error())

	noCode := New(ErrorTypeCacheIO, 0, "disk full")
	assert.Equal(t, "cache_io error: disk full", noCode.Error())
}

func TestIsType(t *testing.T) {
	cause := New(ErrorTypeServerError, 503, "unavailable")
	exhausted := Wrap(ErrorTypeFetchExhausted, 503, cause, "gave up after %d attempts", 3)
	wrapped := fmt.Errorf("fixtures 2024-01: %w", exhausted)

	assert.True(t, IsType(wrapped, ErrorTypeFetchExhausted))
	assert.True(t, IsType(wrapped, ErrorTypeServerError))
	assert.False(t, IsType(wrapped, ErrorTypeAuthExpired))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeNetwork))
	assert.False(t, IsType(nil, ErrorTypeNetwork))

	assert.Equal(t, ErrorTypeFetchExhausted, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError}
	for _, et := range retryable {
		assert.True(t, IsRetryable(et), et)
	}

	terminal := []ErrorType{
		ErrorTypeAuthExpired, ErrorTypeMalformedResponse, ErrorTypeClient,
		ErrorTypeCacheIO, ErrorTypeFetchTimeout, ErrorTypeUnknown,
	}
	for _, et := range terminal {
		assert.False(t, IsRetryable(et), et)
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{0, true},
		{429, true},
		{500, true},
		{502, true},
		{599, true},
		{401, false},
		{403, false},
		{404, false},
		{400, false},
		{200, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableStatusCode(tt.code), "status %d", tt.code)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate([]byte("short"), 10))
	assert.Equal(t, "abc...", Truncate([]byte("abcdef"), 3))
}
