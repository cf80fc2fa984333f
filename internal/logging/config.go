package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level      string            `koanf:"level"`
	Format     string            `koanf:"format"`
	Caller     CallerConfig      `koanf:"caller"`
	Stacktrace StacktraceConfig  `koanf:"stacktrace"`
	Fields     map[string]string `koanf:"fields"`
}

// CallerConfig controls caller information in logs.
type CallerConfig struct {
	Enabled bool `koanf:"enabled"`
	Skip    int  `koanf:"skip"`
}

// StacktraceConfig controls stacktrace inclusion.
type StacktraceConfig struct {
	Level string `koanf:"level"`
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Caller: CallerConfig{
			Enabled: true,
			Skip:    0,
		},
		Stacktrace: StacktraceConfig{
			Level: "error",
		},
		Fields: map[string]string{
			"service": "wsgrep",
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if _, err := LevelFromString(c.Level); err != nil {
		return fmt.Errorf("invalid level %q: %w", c.Level, err)
	}
	if c.Stacktrace.Level != "" {
		if _, err := LevelFromString(c.Stacktrace.Level); err != nil {
			return fmt.Errorf("invalid stacktrace level %q: %w", c.Stacktrace.Level, err)
		}
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		return fmt.Errorf("caller skip must be >= 0, got %d", c.Caller.Skip)
	}
	return nil
}

// zapLevel parses c.Level, falling back to info on error. Callers that need
// the error should use LevelFromString directly.
func (c *Config) zapLevel() zapcore.Level {
	l, err := LevelFromString(c.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}
