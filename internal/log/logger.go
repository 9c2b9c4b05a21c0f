package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger with a context-aware hook chain.
type Logger struct {
	zl    *zap.Logger
	level zap.AtomicLevel
	hooks []Hook
}

func New(cfg Config) (*Logger, error) {
	cfg = cfg.withDefaults()

	var lvl zapcore.Level
	if err := lvl.Set(cfg.Level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	level := zap.NewAtomicLevelAt(lvl)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder

	switch cfg.Format {
	case FormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer

	switch cfg.Output {
	case OutputStdout:
		sink = zapcore.AddSync(os.Stdout)
	case OutputFile:
		sink = zapcore.AddSync(cfg.File.rotator())
	default:
		sink = zapcore.AddSync(os.Stderr)
	}

	core := zapcore.NewCore(enc, sink, level)
	zl := zap.New(core, zap.AddCallerSkip(2)).Named(cfg.Name)

	return &Logger{zl: zl, level: level}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.InfoLevel)}
}

// AddHook registers a context hook. Not safe to call concurrently with
// logging; install hooks during startup.
func (l *Logger) AddHook(h Hook) {
	l.hooks = append(l.hooks, h)
}

func (l *Logger) applyHooks(ctx context.Context, msg string, fields []Field) []Field {
	for _, h := range l.hooks {
		fields = h.Apply(ctx, msg, fields...)
	}

	return fields
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.zl.Debug(msg, l.applyHooks(ctx, msg, fields)...)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.zl.Info(msg, l.applyHooks(ctx, msg, fields)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.zl.Warn(msg, l.applyHooks(ctx, msg, fields)...)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.zl.Error(msg, l.applyHooks(ctx, msg, fields)...)
}

func (l *Logger) DebugEnabled(ctx context.Context) bool {
	return l.level.Enabled(zapcore.DebugLevel)
}

func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// AsSlog bridges the logger into log/slog for libraries that expect one.
func (l *Logger) AsSlog() *slog.Logger {
	return slog.New(&slogHandler{zl: l.zl, level: l.level})
}

type slogHandler struct {
	zl    *zap.Logger
	level zap.AtomicLevel
	attrs []Field
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.level.Enabled(slogToZapLevel(level))
}

func (h *slogHandler) Handle(_ context.Context, rec slog.Record) error {
	fields := make([]Field, 0, len(h.attrs)+rec.NumAttrs())
	fields = append(fields, h.attrs...)

	rec.Attrs(func(a slog.Attr) bool {
		fields = append(fields, zap.Any(a.Key, a.Value.Any()))
		return true
	})

	if ce := h.zl.Check(slogToZapLevel(rec.Level), rec.Message); ce != nil {
		ce.Write(fields...)
	}

	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]Field, 0, len(h.attrs)+len(attrs))
	fields = append(fields, h.attrs...)

	for _, a := range attrs {
		fields = append(fields, zap.Any(a.Key, a.Value.Any()))
	}

	return &slogHandler{zl: h.zl, level: h.level, attrs: fields}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	return &slogHandler{zl: h.zl.Named(name), level: h.level, attrs: h.attrs}
}

func slogToZapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
