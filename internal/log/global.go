package log

import (
	"context"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[Logger]

//nolint:gochecknoinits // the package must be usable before config is loaded.
func init() {
	l, _ := New(Config{})
	defaultLogger.Store(l)
}

// SetDefault replaces the process-wide logger. Call once after config load.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// Default returns the process-wide logger.
func Default() *Logger {
	return defaultLogger.Load()
}

func Debug(ctx context.Context, msg string, fields ...Field) {
	Default().Debug(ctx, msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...Field) {
	Default().Info(ctx, msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...Field) {
	Default().Warn(ctx, msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...Field) {
	Default().Error(ctx, msg, fields...)
}

func DebugEnabled(ctx context.Context) bool {
	return Default().DebugEnabled(ctx)
}
