// Package logging provides a nil-safe structured logging wrapper shared by
// every pass of the pipeline, grounded on golangsnmp-gomib's
// internal/types.Logger: wrapping *slog.Logger this way means passes can
// always call l.Log(...)/l.Trace(...) without a nil check, and the call is
// a true no-op (no allocation, no formatting) when logging is disabled.
package logging

import (
	"context"
	"log/slog"
)

// LevelTrace is a custom level more verbose than Debug, for per-item
// logging (tokens, AST nodes, emitted instructions). Enable it with
// &slog.HandlerOptions{Level: slog.Level(LevelTrace)}.
const LevelTrace = slog.Level(-8)

var background = context.Background() //nolint:gochecknoglobals

// Logger wraps *slog.Logger with nil-safe convenience methods. The zero
// value is a valid, silent logger.
type Logger struct {
	L *slog.Logger
}

// Enabled reports whether logging is active at the given level.
func (l Logger) Enabled(level slog.Level) bool {
	return l.L != nil && l.L.Enabled(background, level)
}

// Log emits a structured message at level. No-op if L is nil or the level
// is disabled.
func (l Logger) Log(level slog.Level, msg string, attrs ...slog.Attr) {
	if l.L != nil && l.L.Enabled(background, level) {
		l.L.LogAttrs(background, level, msg, attrs...)
	}
}

// Debug emits a message at slog.LevelDebug.
func (l Logger) Debug(msg string, attrs ...slog.Attr) {
	l.Log(slog.LevelDebug, msg, attrs...)
}

// TraceEnabled reports whether trace-level logging is active.
func (l Logger) TraceEnabled() bool {
	return l.Enabled(LevelTrace)
}

// Trace emits a message at the custom trace level.
func (l Logger) Trace(msg string, attrs ...slog.Attr) {
	l.Log(LevelTrace, msg, attrs...)
}
