// Package main implements the wsgrep CLI: workspace-aware pattern search
// for git and Perforce client trees.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/wsgrep/internal/backend"
	"github.com/fyrsmithlabs/wsgrep/internal/config"
	"github.com/fyrsmithlabs/wsgrep/internal/ignore"
	"github.com/fyrsmithlabs/wsgrep/internal/logging"
	"github.com/fyrsmithlabs/wsgrep/internal/pattern"
	"github.com/fyrsmithlabs/wsgrep/internal/scanner"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wsgrep",
	Short: "Workspace-aware pattern search",
	Long: `wsgrep searches for a literal string or regular expression inside a
version-controlled workspace. It validates the search path against the
workspace client, checks that a session is active, and scans the tree
with a bounded worker pool.

Supported backends are git repositories and Perforce clients.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wsgrep by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

// loadConfig loads and validates configuration from the --config flag and
// WSGREP_* environment variables.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newBackend builds the configured version-control client.
func newBackend(cfg *config.Config) (backend.Client, error) {
	switch cfg.Backend.Type {
	case config.BackendGit:
		return backend.NewGitClient(), nil
	case config.BackendPerforce:
		timeout := time.Duration(cfg.Backend.P4.Timeout) * time.Second
		return backend.NewPerforceClient(cfg.Backend.P4.Binary, timeout), nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}
}

// workspaceScanner loads ignore rules from each scan root before scanning.
// The root is only known after workspace validation, so the ignore set
// cannot be built ahead of time.
type workspaceScanner struct {
	cfg    config.ScannerConfig
	logger *logging.Logger
}

func (w *workspaceScanner) Scan(ctx context.Context, root string, m pattern.Matcher) (*scanner.Result, error) {
	exclude, err := ignore.Load(root, w.cfg.IgnoreFiles)
	if err != nil {
		return nil, fmt.Errorf("loading ignore rules: %w", err)
	}
	s := scanner.New(scanner.Options{
		Workers:     w.cfg.Workers,
		MaxFileSize: w.cfg.MaxFileSize,
		Exclude:     exclude,
	}, w.logger)
	return s.Scan(ctx, root, m)
}
