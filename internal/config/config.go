// Package config provides configuration loading for wsgrep.
package config

import (
	"fmt"
	"runtime"

	"github.com/fyrsmithlabs/wsgrep/internal/logging"
)

// Backend type names accepted in configuration.
const (
	BackendGit      = "git"
	BackendPerforce = "p4"
)

// Config is the root configuration for wsgrep.
type Config struct {
	Logging logging.Config `koanf:"logging"`
	Scanner ScannerConfig  `koanf:"scanner"`
	Server  ServerConfig   `koanf:"server"`
	Backend BackendConfig  `koanf:"backend"`
}

// ScannerConfig controls the file scanning stage.
type ScannerConfig struct {
	// Workers bounds the number of files scanned concurrently.
	Workers int `koanf:"workers"`

	// MaxFileSize in bytes; larger files are counted as skipped.
	MaxFileSize int64 `koanf:"max_file_size"`

	// IgnoreFiles are gitignore-style files read from the workspace root.
	IgnoreFiles []string `koanf:"ignore_files"`
}

// ServerConfig controls the HTTP daemon (serve mode).
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// SearchTimeout bounds a single HTTP search request, in seconds.
	SearchTimeout int `koanf:"search_timeout"`

	// RateLimit is requests per second allowed per client IP; RateBurst is
	// the token bucket size.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// BackendConfig selects and configures the version-control backend.
type BackendConfig struct {
	// Type is "git" or "p4".
	Type string `koanf:"type"`

	P4 P4Config `koanf:"p4"`
}

// P4Config configures the Perforce backend.
type P4Config struct {
	// Binary is the p4 executable to invoke.
	Binary string `koanf:"binary"`

	// Timeout bounds each p4 invocation, in seconds.
	Timeout int `koanf:"timeout"`
}

// workerCap keeps very large worker counts from exhausting file descriptors
// on big trees.
const workerCap = 64

// DefaultWorkers returns the default scan concurrency: a small multiple of
// available hardware parallelism, capped.
func DefaultWorkers() int {
	n := 4 * runtime.GOMAXPROCS(0)
	if n > workerCap {
		n = workerCap
	}
	return n
}

// applyDefaults fills zero values with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Fields == nil {
		cfg.Logging.Fields = map[string]string{"service": "wsgrep"}
	}
	if cfg.Scanner.Workers == 0 {
		cfg.Scanner.Workers = DefaultWorkers()
	}
	if cfg.Scanner.MaxFileSize == 0 {
		cfg.Scanner.MaxFileSize = 10 * 1024 * 1024 // 10MB
	}
	if cfg.Scanner.IgnoreFiles == nil {
		cfg.Scanner.IgnoreFiles = []string{".gitignore", ".p4ignore"}
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9180
	}
	if cfg.Server.SearchTimeout == 0 {
		cfg.Server.SearchTimeout = 120
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 1
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 10
	}
	if cfg.Backend.Type == "" {
		cfg.Backend.Type = BackendGit
	}
	if cfg.Backend.P4.Binary == "" {
		cfg.Backend.P4.Binary = "p4"
	}
	if cfg.Backend.P4.Timeout == 0 {
		cfg.Backend.P4.Timeout = 30
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Scanner.Workers < 1 {
		return fmt.Errorf("scanner.workers must be >= 1, got %d", c.Scanner.Workers)
	}
	if c.Scanner.Workers > workerCap {
		return fmt.Errorf("scanner.workers must be <= %d, got %d", workerCap, c.Scanner.Workers)
	}
	if c.Scanner.MaxFileSize < 0 {
		return fmt.Errorf("scanner.max_file_size must be >= 0, got %d", c.Scanner.MaxFileSize)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Server.SearchTimeout < 1 {
		return fmt.Errorf("server.search_timeout must be >= 1, got %d", c.Server.SearchTimeout)
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("server.rate_limit must be > 0, got %v", c.Server.RateLimit)
	}
	if c.Server.RateBurst < 1 {
		return fmt.Errorf("server.rate_burst must be >= 1, got %d", c.Server.RateBurst)
	}
	switch c.Backend.Type {
	case BackendGit, BackendPerforce:
	default:
		return fmt.Errorf("backend.type must be %q or %q, got %q", BackendGit, BackendPerforce, c.Backend.Type)
	}
	if c.Backend.Type == BackendPerforce && c.Backend.P4.Timeout < 1 {
		return fmt.Errorf("backend.p4.timeout must be >= 1, got %d", c.Backend.P4.Timeout)
	}
	return nil
}
