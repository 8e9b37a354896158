package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest records one completed HTTP exchange against the vendor API
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		l.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogRetry records a scheduled retry of a failed attempt
func LogRetry(l Logger, url string, attempt, maxAttempts int, delay time.Duration, err error) {
	l.WithError(err).WarnWithFields("Request failed, retrying", map[string]interface{}{
		"url":          url,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
		"delay":        delay,
	})
}

// LogRateLimit records a 429 from the vendor
func LogRateLimit(l Logger, url string, retryAfter time.Duration) {
	l.WarnWithFields("Rate limit reached, backing off", map[string]interface{}{
		"url":         url,
		"retry_after": retryAfter,
		"action":      "rate_limited",
	})
}

// LogUnitSkipped records a unit of work abandoned under the skip policy
func LogUnitSkipped(l Logger, kind, id string, err error) {
	l.WithError(err).WarnWithFields("Skipping unit", map[string]interface{}{
		"kind": kind,
		"id":   id,
	})
}

// LogRunProgress records how far a run has got through its month buckets
func LogRunProgress(l Logger, month string, done, total int) {
	percentage := 0.0
	if total > 0 {
		percentage = float64(done) / float64(total) * 100
	}

	l.InfoWithFields("Run progress", map[string]interface{}{
		"month":      month,
		"done":       done,
		"total":      total,
		"percentage": fmt.Sprintf("%.1f%%", percentage),
	})
}

// LogMetrics logs a set of named measurements for operation
func LogMetrics(l Logger, operation string, metrics map[string]interface{}) {
	fields := map[string]interface{}{
		"operation": operation,
		"type":      "metrics",
	}
	for k, v := range metrics {
		fields[k] = v
	}
	l.InfoWithFields("Run metrics", fields)
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, settings map[string]interface{}) {
	cl := l.WithField("component", component)
	if len(settings) > 0 {
		cl = cl.WithFields(settings)
	}
	cl.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger returns a Logger that discards everything
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
