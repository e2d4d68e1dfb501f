package log

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/releasekit/internal/errors"
)

// Logger provides structured logging with slog
type Logger struct {
	slog   *slog.Logger
	config Config
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	if config.Output == nil {
		config.Output = io.Discard
	}
	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == FormatJSON {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	logger := slog.New(handler)
	if config.Component != "" {
		logger = logger.With("component", config.Component)
	}
	return &Logger{slog: logger, config: config}
}

// Discard returns a logger that drops everything. Used by tests and as the
// fallback when a collaborator is built without a logger.
func Discard() *Logger {
	return New(Config{Level: LevelError, Output: io.Discard})
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *Logger) *Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// With returns a new Logger with the given attributes added to all log entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), config: l.config}
}

// ForStage scopes the logger to a run and stage.
func (l *Logger) ForStage(runID, stage string) *Logger {
	return l.With("run_id", runID, "stage", stage)
}

// WithError adds error details to the logger.
// Coded errors contribute error_code and suggestions.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	var coded *errors.Error
	if stderrors.As(err, &coded) {
		args := []any{
			"error", coded.Message,
			"error_code", string(coded.Code),
		}
		if len(coded.Suggestions) > 0 {
			args = append(args, "suggestions", coded.Suggestions)
		}
		if coded.Cause != nil {
			args = append(args, "cause", coded.Cause.Error())
		}
		return l.With(args...)
	}

	return l.With("error", err.Error())
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// InfoContext logs an info message with context
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// ErrorContext logs an error message with context
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slog.ErrorContext(ctx, msg, args...)
}

// Enabled returns whether the logger is enabled for the given level
func (l *Logger) Enabled(ctx context.Context, level Level) bool {
	return l.slog.Enabled(ctx, level.slogLevel())
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

var (
	defaultLogger *Logger
	loggerMu      sync.RWMutex
)

// SetDefault sets the process-wide default logger.
func SetDefault(logger *Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = logger
}

// Default returns the process-wide default logger, creating one from
// DefaultConfig on first use.
func Default() *Logger {
	loggerMu.RLock()
	if defaultLogger != nil {
		defer loggerMu.RUnlock()
		return defaultLogger
	}
	loggerMu.RUnlock()

	logger := New(DefaultConfig())
	SetDefault(logger)
	return logger
}
