package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wsgrep/internal/config"
	"github.com/fyrsmithlabs/wsgrep/internal/httpapi"
	"github.com/fyrsmithlabs/wsgrep/internal/logging"
	"github.com/fyrsmithlabs/wsgrep/internal/search"
	"github.com/fyrsmithlabs/wsgrep/internal/session"
	"github.com/fyrsmithlabs/wsgrep/internal/telemetry"
	"github.com/fyrsmithlabs/wsgrep/internal/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wsgrep HTTP daemon",
	Long: `Run wsgrep as an HTTP daemon. Endpoints:

  POST /api/v1/search   run a search and return matches as JSON
  GET  /healthz         liveness probe
  GET  /metrics         Prometheus metrics

While running, edits to the config file adjust the log level without a
restart.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := newBackend(cfg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	// One coordinator per HTTP request; the shared pieces underneath are
	// all safe for concurrent use.
	factory := func() *search.Coordinator {
		return search.New(
			workspace.NewResolver(client, logger),
			session.NewGuard(client, logger),
			&workspaceScanner{cfg: cfg.Scanner, logger: logger},
			logger, metrics)
	}

	srv, err := httpapi.NewServer(factory, logger, cfg.Server, registry)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		stopWatch, err := watchLogLevel(configPath, logger)
		if err != nil {
			logger.Warn("config watch disabled", zap.Error(err))
		} else {
			defer stopWatch()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// watchLogLevel watches the config file and applies logging.level changes
// to the running logger. Other settings still require a restart.
func watchLogLevel(path string, logger *logging.Logger) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	// Watch the directory rather than the file: editors replace files on
	// save, which drops a watch held on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				name, err := filepath.Abs(event.Name)
				if err != nil || name != target {
					continue
				}
				applyLogLevel(path, logger)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", zap.Error(err))
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}

func applyLogLevel(path string, logger *logging.Logger) {
	cfg, err := config.Load(path)
	if err != nil {
		logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
		return
	}
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		logger.Warn("config reload: bad log level", zap.String("level", cfg.Logging.Level))
		return
	}
	if logger.Level() == level {
		return
	}
	logger.SetLevel(level)
	logger.Info("log level changed", zap.String("level", cfg.Logging.Level))
}
