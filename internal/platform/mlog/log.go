// Package mlog provides the structured logging interface shared by every
// component of the pipeline: a small leveled interface, a context carrier,
// and a no-op implementation for code paths that run before a logger has
// been wired up.
package mlog

import "context"

// Logger is the common interface implemented by every logging backend in
// this repository.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)

	Fatal(args ...any)
	Fatalf(format string, args ...any)

	// WithFields returns a derived Logger that always includes the given
	// key/value pairs in subsequent log lines.
	WithFields(fields ...any) Logger

	Sync() error
}

// NoneLogger discards everything. Used as the zero value returned from
// FromContext when no logger was ever attached.
type NoneLogger struct{}

func (NoneLogger) Info(args ...any)                  {}
func (NoneLogger) Infof(format string, args ...any)  {}
func (NoneLogger) Error(args ...any)                 {}
func (NoneLogger) Errorf(format string, args ...any) {}
func (NoneLogger) Warn(args ...any)                  {}
func (NoneLogger) Warnf(format string, args ...any)  {}
func (NoneLogger) Debug(args ...any)                 {}
func (NoneLogger) Debugf(format string, args ...any) {}
func (NoneLogger) Fatal(args ...any)                 {}
func (NoneLogger) Fatalf(format string, args ...any) {}
func (l NoneLogger) WithFields(fields ...any) Logger { return l }
func (NoneLogger) Sync() error                       { return nil }

type loggerContextKey struct{}

// ContextWithLogger attaches a Logger to ctx.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// FromContext extracts the Logger attached to ctx, falling back to a
// NoneLogger when none was attached.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return logger
	}

	return NoneLogger{}
}
