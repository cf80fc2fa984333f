package logging

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap with a runtime-adjustable level.
type Logger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
}

// NewLogger creates a logger from config.
func NewLogger(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := zap.NewAtomicLevelAt(cfg.zapLevel())
	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.Lock(os.Stderr), level)

	opts := []zap.Option{}
	if cfg.Caller.Enabled {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(cfg.Caller.Skip))
	}
	if cfg.Stacktrace.Level != "" {
		stLevel, err := LevelFromString(cfg.Stacktrace.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid stacktrace level: %w", err)
		}
		opts = append(opts, zap.AddStacktrace(stLevel))
	}

	zapLogger := zap.New(core, opts...)

	if len(cfg.Fields) > 0 {
		fields := make([]zap.Field, 0, len(cfg.Fields))
		for k, v := range cfg.Fields {
			fields = append(fields, zap.String(k, v))
		}
		zapLogger = zapLogger.With(fields...)
	}

	return &Logger{zap: zapLogger, level: level}, nil
}

// NewNop returns a logger that discards everything. Useful as a default for
// components that accept an optional logger.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zap.NewAtomicLevel()}
}

// newEncoder creates JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

func (l *Logger) Trace(msg string, fields ...zap.Field) {
	if l.Enabled(TraceLevel) {
		l.zap.Log(TraceLevel, msg, fields...)
	}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.zap.Fatal(msg, fields...) }

// Child logger creation

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...), level: l.level}
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name), level: l.level}
}

// Enabled returns true if the given level is enabled.
func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.zap.Core().Enabled(level)
}

// SetLevel adjusts the logger level at runtime. Child loggers created with
// With/Named share the same level.
func (l *Logger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

// Level returns the current level.
func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	err := l.zap.Sync()
	// Syncing stderr returns EINVAL or ENOTTY on Linux, which is harmless.
	if err != nil && isStderrSyncError(err) {
		return nil
	}
	return err
}

// Underlying returns the underlying zap.Logger.
// Useful when integrating with libraries that require a *zap.Logger.
func (l *Logger) Underlying() *zap.Logger {
	return l.zap
}

func isStderrSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
