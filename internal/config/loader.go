package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// envPrefix namespaces wsgrep environment variables.
const envPrefix = "WSGREP_"

// DefaultPath returns the default config file location
// (~/.config/wsgrep/config.yaml).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "wsgrep", "config.yaml"), nil
}

// Load loads configuration from a YAML file, then overrides with environment
// variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (WSGREP_SCANNER_WORKERS, WSGREP_SERVER_PORT, ...)
//  2. YAML config file (~/.config/wsgrep/config.yaml by default)
//  3. Hardcoded defaults
//
// A missing config file is not an error; defaults and environment apply.
//
// Environment variables use underscore separator: the first underscore after
// the prefix splits section from field, so WSGREP_SCANNER_MAX_FILE_SIZE maps
// to scanner.max_file_size.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and read through the descriptor to avoid a TOCTOU race
		// between stat and read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnv), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// transformEnv maps WSGREP_SECTION_FIELD_NAME to section.field_name.
// The first underscore after the prefix splits section from field; further
// underscores stay in the field name.
func transformEnv(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	// backend.p4 is the one nested section reachable from the environment
	// (WSGREP_BACKEND_P4_BINARY -> backend.p4.binary).
	if parts[0] == "backend" && strings.HasPrefix(parts[1], "p4_") {
		return "backend.p4." + strings.TrimPrefix(parts[1], "p4_")
	}
	return parts[0] + "." + parts[1]
}
