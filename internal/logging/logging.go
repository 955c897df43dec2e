// Package logging provides structured logging for edgeflow.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across the receiver, the analyzer and the store
// backends. Text output is rendered by tint, JSON by slog itself. Levels are
// configurable and every component gets its own logger.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for production
//
//	// Get a component logger
//	log := logging.Component("ingest")
//	log.Info("record stored", "device_id", id, "timestamp", ts)
//
//	// Request-scoped logging
//	ctx = logging.ContextWithCorrelationID(ctx, corr)
//	logging.WithContext(ctx, log).Warn("publish failed", "error", err)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	InitWriter(os.Stdout, level, jsonFormat)
}

// InitWriter is Init with an explicit destination. Text output goes through
// tint, colored only when w is a terminal.
func InitWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	var handler slog.Handler

	if jsonFormat {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: level == slog.LevelDebug,
		})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  level == slog.LevelDebug,
			TimeFormat: time.StampMilli,
			NoColor:    !isTerminal(w),
		})
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel converts a level name (debug, info, warn, error) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// With returns a new logger with additional attributes.
func With(args ...any) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	return Logger.With(args...)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("window")
//	log.Info("started") // Output: time=... level=INFO component=window msg=started
func Component(name string) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	return Logger.With("component", name)
}

// WithContext returns base enriched with the correlation and device ids
// carried by ctx. A nil base uses the global logger.
func WithContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		if Logger == nil {
			Init(slog.LevelInfo, false)
		}
		base = Logger
	}

	logger := base
	if corr, ok := ctx.Value(contextKeyCorrelationID).(string); ok && corr != "" {
		logger = logger.With("correlation_id", corr)
	}
	if device, ok := ctx.Value(contextKeyDeviceID).(string); ok && device != "" {
		logger = logger.With("device_id", device)
	}

	return logger
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeyCorrelationID contextKey = iota
	contextKeyDeviceID
)

// ContextWithCorrelationID adds a correlation id to the context for logging.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyCorrelationID, id)
}

// ContextWithDeviceID adds a device id to the context for logging.
func ContextWithDeviceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyDeviceID, id)
}

// CorrelationID returns the correlation id stored in ctx, if any.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyCorrelationID).(string)
	return id
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	Logger.Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	Logger.Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	Logger.Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	Logger.Error(msg, args...)
}
