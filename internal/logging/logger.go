// Package logging provides the structured logger used across sitepipe and
// the console notifier that prints task and reload status lines.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// LogLevel represents different log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a flag value such as "debug" or "WARN" to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l LogLevel) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		// Above error: only Fatal calls get through.
		return slog.LevelError + 4
	}
}

// Logger interface for structured logging
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Fatal(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level     LogLevel
	Format    string // "json" or "text"
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// PipelineLogger is a Logger backed by slog. Fields bound with With live
// on the slog.Logger; the component is kept apart so WithComponent replaces
// it instead of adding a second one.
type PipelineLogger struct {
	logger    *slog.Logger
	component string
	source    bool
}

// NewLogger creates a new structured logger
func NewLogger(config *LoggerConfig) *PipelineLogger {
	if config == nil {
		config = DefaultConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level.slog(),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &PipelineLogger{
		logger:    slog.New(handler),
		component: config.Component,
		source:    config.AddSource,
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *PipelineLogger {
	return &PipelineLogger{logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: LevelFatal.slog() + 1}))}
}

func (l *PipelineLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelDebug, nil, msg, fields)
}

func (l *PipelineLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelInfo, nil, msg, fields)
}

func (l *PipelineLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelWarn, err, msg, fields)
}

func (l *PipelineLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelError, err, msg, fields)
}

// Fatal logs above error level. It does not exit; the caller decides what a
// fatal condition means.
func (l *PipelineLogger) Fatal(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, LevelFatal.slog(), err, msg, fields)
}

// With returns a logger that adds fields to every record.
func (l *PipelineLogger) With(fields ...interface{}) Logger {
	return &PipelineLogger{
		logger:    l.logger.With(fields...),
		component: l.component,
		source:    l.source,
	}
}

// WithComponent returns a logger tagged with component.
func (l *PipelineLogger) WithComponent(component string) Logger {
	return &PipelineLogger{
		logger:    l.logger,
		component: component,
		source:    l.source,
	}
}

type fieldsKey struct{}

// ContextWithFields returns a context whose fields are added to every record
// logged with it, such as the ID of the run a task belongs to.
func ContextWithFields(ctx context.Context, fields ...interface{}) context.Context {
	prev, _ := ctx.Value(fieldsKey{}).([]interface{})
	merged := make([]interface{}, 0, len(prev)+len(fields))
	merged = append(merged, prev...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

func (l *PipelineLogger) log(ctx context.Context, level slog.Level, err error, msg string, fields []interface{}) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.logger.Enabled(ctx, level) {
		return
	}

	var pc uintptr
	if l.source {
		var pcs [1]uintptr
		// runtime.Callers, log, and the level method.
		runtime.Callers(3, pcs[:])
		pc = pcs[0]
	}

	record := slog.NewRecord(time.Now(), level, msg, pc)
	if l.component != "" {
		record.AddAttrs(slog.String("component", l.component))
	}
	if err != nil {
		record.AddAttrs(slog.String("error", err.Error()))
	}
	if ctxFields, ok := ctx.Value(fieldsKey{}).([]interface{}); ok {
		record.Add(ctxFields...)
	}
	record.Add(fields...)

	_ = l.logger.Handler().Handle(ctx, record)
}
