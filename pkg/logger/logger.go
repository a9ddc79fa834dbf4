// Package logger provides structured, leveled logging backed by zap.
//
// Components accept a [Logger] via functional options and fall back to the
// process-wide [Default] when none is supplied. Arguments after the message
// are alternating key/value pairs.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

// Logger is the logging contract used throughout sentrydb.
// Implementations must be safe for concurrent use.
type Logger interface {
	// With returns a child logger with the given key/value pairs attached
	// to every message.
	With(kv ...any) Logger

	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)

	// Fatal logs the message and terminates the process.
	Fatal(msg string, kv ...any)
}

// Compile-time interface check.
var _ Logger = (*zapLogger)(nil)

type zapLogger struct {
	s *zap.SugaredLogger
}

// New wraps an existing zap logger. The caller keeps ownership of the
// underlying logger and is responsible for syncing it.
func New(z *zap.Logger) Logger {
	// Skip one frame so call sites, not this wrapper, are reported.
	return &zapLogger{s: z.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// MustProduction returns a production (JSON, info-level) logger.
// Panics if the logger cannot be constructed.
func MustProduction() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		panic("logger: failed to build production logger: " + err.Error())
	}
	return New(z)
}

// MustDevelopment returns a development (console, debug-level) logger.
// Panics if the logger cannot be constructed.
func MustDevelopment() Logger {
	z, err := zap.NewDevelopment()
	if err != nil {
		panic("logger: failed to build development logger: " + err.Error())
	}
	return New(z)
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}

func (l *zapLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l *zapLogger) Fatal(msg string, kv ...any) { l.s.Fatalw(msg, kv...) }

// ---------------------------------------------------------------------------
// Process-wide default
// ---------------------------------------------------------------------------

var (
	defaultMu sync.RWMutex
	defaultL  Logger = Nop()
)

// Default returns the process-wide logger.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultL
}

// SetDefault replaces the process-wide logger. Typically called once from
// main before any other package is used.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if l != nil {
		defaultL = l
	}
}

// SyncDefault flushes any buffered log entries in the default logger.
// Best-effort; safe to call in a defer from main.
func SyncDefault() {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if z, ok := defaultL.(*zapLogger); ok {
		_ = z.s.Sync()
	}
}

// Fatal logs to the default logger and terminates the process.
func Fatal(msg string, kv ...any) {
	Default().Fatal(msg, kv...)
}
