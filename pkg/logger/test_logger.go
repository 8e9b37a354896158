package logger

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogMessage is one entry captured by a TestLogger
type LogMessage struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	Error   error
}

type recorder struct {
	mu       sync.Mutex
	messages []LogMessage
}

// TestLogger captures log entries in memory for assertions. Loggers derived
// with WithField, WithFields or WithError share the parent's recording.
type TestLogger struct {
	rec    *recorder
	fields map[string]interface{}
	err    error
	nop    *zerolog.Logger
}

// NewTestLogger creates an empty TestLogger
func NewTestLogger() *TestLogger {
	nop := zerolog.Nop()
	return &TestLogger{rec: &recorder{}, nop: &nop}
}

func (l *TestLogger) Debug(msg string) { l.log("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.log("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.log("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.log("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.log("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log("ERROR", msg, fields)
}

func (l *TestLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.log("FATAL", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.derive(map[string]interface{}{key: value}, l.err)
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return l.derive(fields, l.err)
}

func (l *TestLogger) WithError(err error) Logger {
	return l.derive(nil, err)
}

func (l *TestLogger) WithContext(ctx context.Context) Logger {
	return l
}

func (l *TestLogger) GetZerolog() *zerolog.Logger {
	return l.nop
}

func (l *TestLogger) derive(extra map[string]interface{}, err error) *TestLogger {
	return &TestLogger{rec: l.rec, fields: merge(l.fields, extra), err: err, nop: l.nop}
}

func (l *TestLogger) log(level, msg string, fields map[string]interface{}) {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()

	l.rec.messages = append(l.rec.messages, LogMessage{
		Level:   level,
		Message: msg,
		Fields:  merge(l.fields, fields),
		Error:   l.err,
	})
}

func merge(a, b map[string]interface{}) map[string]interface{} {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// GetMessages returns a copy of all captured entries
func (l *TestLogger) GetMessages() []LogMessage {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()

	out := make([]LogMessage, len(l.rec.messages))
	copy(out, l.rec.messages)
	return out
}

// GetMessagesByLevel returns captured entries at level
func (l *TestLogger) GetMessagesByLevel(level string) []LogMessage {
	var filtered []LogMessage
	for _, m := range l.GetMessages() {
		if m.Level == level {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// HasMessage reports whether an entry with exactly text was captured
func (l *TestLogger) HasMessage(text string) bool {
	for _, m := range l.GetMessages() {
		if m.Message == text {
			return true
		}
	}
	return false
}

// HasError reports whether anything was logged at ERROR
func (l *TestLogger) HasError() bool {
	return len(l.GetMessagesByLevel("ERROR")) > 0
}

// Clear drops all captured entries
func (l *TestLogger) Clear() {
	l.rec.mu.Lock()
	defer l.rec.mu.Unlock()
	l.rec.messages = nil
}

func (l *TestLogger) String() string {
	var b strings.Builder
	for _, m := range l.GetMessages() {
		b.WriteString("[" + m.Level + "] " + m.Message + "\n")
	}
	return b.String()
}
