package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the kinds of failure the pipeline distinguishes
type ErrorType string

const (
	ErrorTypeInvalidRange      ErrorType = "invalid_range"
	ErrorTypeInvertedRange     ErrorType = "inverted_range"
	ErrorTypeTokenCapture      ErrorType = "token_capture"
	ErrorTypeAuthExpired       ErrorType = "auth_expired"
	ErrorTypeFetchExhausted    ErrorType = "fetch_exhausted"
	ErrorTypeMalformedResponse ErrorType = "malformed_response"
	ErrorTypeCacheIO           ErrorType = "cache_io"
	ErrorTypeFetchTimeout      ErrorType = "fetch_timeout"
	ErrorTypeClient            ErrorType = "client_error"

	// Transport-level kinds, only seen inside the retry loop
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a typed pipeline error. Code carries the last HTTP status when one
// was observed, 0 otherwise.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without a cause
func New(t ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{Type: t, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error around cause
func Wrap(t ErrorType, code int, cause error, format string, args ...interface{}) *Error {
	return &Error{Type: t, Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// TypeOf returns the type of the first *Error in err's chain, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err's chain contains an *Error of type t
func IsType(err error, t ErrorType) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Err
	}
	return false
}

// IsRetryable checks if an error type should be retried by the fetch loop
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// Truncate shortens a response body for log output
func Truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
