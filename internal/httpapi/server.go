// Package httpapi exposes the search pipeline over HTTP for serve mode.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/wsgrep/internal/config"
	"github.com/fyrsmithlabs/wsgrep/internal/logging"
	"github.com/fyrsmithlabs/wsgrep/internal/scanner"
	"github.com/fyrsmithlabs/wsgrep/internal/search"
)

// CoordinatorFactory builds a fresh pipeline per HTTP request: a
// Coordinator handles one request at a time, and concurrent HTTP callers
// must not share one.
type CoordinatorFactory func() *search.Coordinator

// Server provides HTTP endpoints for wsgrep.
type Server struct {
	echo        *echo.Echo
	coordinator CoordinatorFactory
	logger      *logging.Logger
	cfg         config.ServerConfig

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
}

// NewServer creates the HTTP server. registry may be nil to disable the
// metrics endpoint.
func NewServer(factory CoordinatorFactory, logger *logging.Logger, cfg config.ServerConfig, registry *prometheus.Registry) (*Server, error) {
	if factory == nil {
		return nil, fmt.Errorf("coordinator factory is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:        e,
		coordinator: factory,
		logger:      logger,
		cfg:         cfg,
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}

	s.registerRoutes(registry)
	return s, nil
}

func (s *Server) registerRoutes(registry *prometheus.Registry) {
	s.echo.GET("/healthz", s.handleHealth)
	if registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/search", s.handleSearch)
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Status string          `json:"status"`
	Reason string          `json:"reason,omitempty"`
	Result *scanner.Result `json:"result,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleSearch(c echo.Context) error {
	if !s.allow(c.RealIP()) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	}

	var req search.Request
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	coord := s.coordinator()
	if _, err := coord.Submit(req); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	timeout := time.Duration(s.cfg.SearchTimeout) * time.Second
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()

	snap, err := coord.Wait(ctx)
	if err != nil {
		// Client went away or the deadline passed; stop the pipeline.
		coord.Cancel()
		snap, err = coord.Wait(context.Background())
		if err != nil {
			s.logger.Warn("search did not stop after cancel", zap.Error(err))
			return echo.NewHTTPError(http.StatusGatewayTimeout, "search timed out")
		}
		if snap.Status != search.StatusCompleted {
			return echo.NewHTTPError(http.StatusGatewayTimeout, "search timed out")
		}
	}

	resp := SearchResponse{
		Status: snap.Status.String(),
		Reason: string(snap.Reason),
		Result: snap.Result,
	}
	return c.JSON(statusCode(snap), resp)
}

// statusCode maps a terminal snapshot to an HTTP status.
func statusCode(snap search.Snapshot) int {
	if snap.Status == search.StatusCompleted {
		return http.StatusOK
	}
	switch snap.Reason {
	case search.ReasonMissingPath, search.ReasonMissingPattern,
		search.ReasonInvalidPath, search.ReasonInvalidPattern:
		return http.StatusBadRequest
	case search.ReasonNotLoggedIn, search.ReasonSessionExpired:
		return http.StatusUnauthorized
	case search.ReasonClientRootConflict:
		return http.StatusConflict
	case search.ReasonCancelled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// allow applies the per-IP token bucket.
func (s *Server) allow(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop all buckets periodically so one-off clients do not accumulate.
	if time.Since(s.lastCleanup) > time.Hour {
		s.limiters = make(map[string]*rate.Limiter)
		s.lastCleanup = time.Now()
	}

	limiter, ok := s.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
		s.limiters[ip] = limiter
	}
	return limiter.Allow()
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
