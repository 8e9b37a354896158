package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bhascraper/pkg/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Logger is the structured logging surface used across the scraper
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
	WithContext(ctx context.Context) Logger

	DebugWithFields(msg string, fields map[string]interface{})
	InfoWithFields(msg string, fields map[string]interface{})
	WarnWithFields(msg string, fields map[string]interface{})
	ErrorWithFields(msg string, fields map[string]interface{})
	FatalWithFields(msg string, fields map[string]interface{})

	GetZerolog() *zerolog.Logger
}

type zerologLogger struct {
	logger *zerolog.Logger
	fields map[string]interface{}
}

// New builds a Logger from cfg. Console output is colourised only when
// stderr is a terminal; otherwise plain JSON lines are written so that
// redirected runs stay machine readable.
func New(cfg *config.LoggingConfig) (Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = os.Stderr
	if term.IsTerminal(int(os.Stderr.Fd())) {
		console = consoleWriter(os.Stderr)
	}

	output := console
	if cfg.File != "" {
		file, err := openLogFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to setup file output: %w", err)
		}
		output = zerolog.MultiLevelWriter(console, file)
	}

	return NewWithWriter(output, level), nil
}

// NewWithWriter builds a Logger writing JSON lines to w at the given level
func NewWithWriter(w io.Writer, level zerolog.Level) Logger {
	zlog := zerolog.New(w).Level(level).With().
		Timestamp().
		Str("app", "bhascraper").
		Logger()

	return &zerologLogger{
		logger: &zlog,
		fields: map[string]interface{}{},
	}
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		FormatLevel: func(i interface{}) string {
			if i == nil {
				return ""
			}
			switch strings.ToUpper(fmt.Sprintf("%s", i)) {
			case "DEBUG":
				return "\033[37mDEBG\033[0m"
			case "INFO":
				return "\033[32mINFO\033[0m"
			case "WARN":
				return "\033[33mWARN\033[0m"
			case "ERROR":
				return "\033[31mERRO\033[0m"
			case "FATAL":
				return "\033[35mFATL\033[0m"
			default:
				return strings.ToUpper(fmt.Sprintf("%s", i))
			}
		},
		FormatMessage: func(i interface{}) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("| %s", i)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("\033[36m%s\033[0m:", i)
		},
	}
}

func openLogFile(path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// ParseLevel maps a config level name to a zerolog level
func ParseLevel(level string) (zerolog.Level, error) {
	return parseLogLevel(level)
}

func parseLogLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "fatal":
		return zerolog.FatalLevel, nil
	case "disabled":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func (l *zerologLogger) Debug(msg string) { l.emit(l.logger.Debug(), msg, nil) }
func (l *zerologLogger) Info(msg string)  { l.emit(l.logger.Info(), msg, nil) }
func (l *zerologLogger) Warn(msg string)  { l.emit(l.logger.Warn(), msg, nil) }
func (l *zerologLogger) Error(msg string) { l.emit(l.logger.Error(), msg, nil) }
func (l *zerologLogger) Fatal(msg string) { l.emit(l.logger.Fatal(), msg, nil) }

func (l *zerologLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.emit(l.logger.Debug(), msg, fields)
}

func (l *zerologLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.emit(l.logger.Info(), msg, fields)
}

func (l *zerologLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.emit(l.logger.Warn(), msg, fields)
}

func (l *zerologLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.emit(l.logger.Error(), msg, fields)
}

func (l *zerologLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.emit(l.logger.Fatal(), msg, fields)
}

func (l *zerologLogger) WithField(key string, value interface{}) Logger {
	return l.child(map[string]interface{}{key: value})
}

func (l *zerologLogger) WithFields(fields map[string]interface{}) Logger {
	return l.child(fields)
}

// WithError attaches err under the "error" key; a nil error is a no-op
func (l *zerologLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.child(map[string]interface{}{"error": err.Error()})
}

func (l *zerologLogger) WithContext(ctx context.Context) Logger {
	ctxLogger := l.logger.With().Ctx(ctx).Logger()
	return &zerologLogger{logger: &ctxLogger, fields: l.fields}
}

func (l *zerologLogger) GetZerolog() *zerolog.Logger {
	return l.logger
}

// child returns a copy of l with extra merged over the existing fields
func (l *zerologLogger) child(extra map[string]interface{}) *zerologLogger {
	fields := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return &zerologLogger{logger: l.logger, fields: fields}
}

func (l *zerologLogger) emit(event *zerolog.Event, msg string, fields map[string]interface{}) {
	if event == nil {
		return
	}
	for k, v := range l.fields {
		event = addField(event, k, v)
	}
	for k, v := range fields {
		event = addField(event, k, v)
	}
	event.Msg(msg)
}

func addField(event *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return event.Str(key, v)
	case int:
		return event.Int(key, v)
	case int64:
		return event.Int64(key, v)
	case float64:
		return event.Float64(key, v)
	case bool:
		return event.Bool(key, v)
	case time.Time:
		return event.Time(key, v)
	case time.Duration:
		return event.Dur(key, v)
	case error:
		return event.AnErr(key, v)
	case []string:
		return event.Strs(key, v)
	case []int:
		return event.Ints(key, v)
	default:
		return event.Interface(key, v)
	}
}

var globalLogger Logger

// Initialize sets up the global logger and the zerolog package logger
func Initialize(cfg *config.LoggingConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	globalLogger = l
	log.Logger = *l.GetZerolog()
	return nil
}

// GetLogger returns the global logger, creating an info-level one on first use
func GetLogger() Logger {
	if globalLogger == nil {
		globalLogger, _ = New(&config.LoggingConfig{Level: "info"})
	}
	return globalLogger
}

// SetLogger replaces the global logger
func SetLogger(l Logger) {
	globalLogger = l
}

func Debug(msg string) { GetLogger().Debug(msg) }
func Info(msg string)  { GetLogger().Info(msg) }
func Warn(msg string)  { GetLogger().Warn(msg) }
func Error(msg string) { GetLogger().Error(msg) }

func WithField(key string, value interface{}) Logger {
	return GetLogger().WithField(key, value)
}

func WithFields(fields map[string]interface{}) Logger {
	return GetLogger().WithFields(fields)
}

func WithError(err error) Logger {
	return GetLogger().WithError(err)
}
