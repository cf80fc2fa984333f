// Package search drives the validation, authentication, and scan pipeline
// for one search request at a time, and owns the observable status state
// machine.
//
// The pipeline runs on its own goroutine; the presentation layer submits a
// Request, then polls Status or consumes Updates until a terminal status
// arrives. Exactly one terminal status ends every accepted request.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wsgrep/internal/logging"
	"github.com/fyrsmithlabs/wsgrep/internal/pattern"
	"github.com/fyrsmithlabs/wsgrep/internal/scanner"
	"github.com/fyrsmithlabs/wsgrep/internal/session"
	"github.com/fyrsmithlabs/wsgrep/internal/telemetry"
	"github.com/fyrsmithlabs/wsgrep/internal/workspace"
)

const instrumentationName = "github.com/fyrsmithlabs/wsgrep/internal/search"

// Coordinator lifecycle errors.
var (
	// ErrBusy indicates a request is already in flight.
	ErrBusy = errors.New("a search is already in progress")

	// ErrNotRetryable indicates Retry was issued outside a recoverable
	// failure.
	ErrNotRetryable = errors.New("current state does not admit retry")

	// ErrNotTerminal indicates Ack was issued before a terminal status.
	ErrNotTerminal = errors.New("no terminal status to acknowledge")
)

// PathResolver validates a request path against the workspace.
type PathResolver interface {
	Resolve(ctx context.Context, path string) (*workspace.Info, error)
}

// SessionChecker probes authentication state.
type SessionChecker interface {
	Check(ctx context.Context) (session.State, error)
}

// FileScanner applies a matcher across a tree.
type FileScanner interface {
	Scan(ctx context.Context, root string, m pattern.Matcher) (*scanner.Result, error)
}

// Coordinator owns the search state machine. It handles one request at a
// time; after a terminal status is acknowledged it returns to idle and can
// accept the next request.
type Coordinator struct {
	resolver PathResolver
	guard    SessionChecker
	files    FileScanner
	logger   *logging.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer

	mu        sync.Mutex
	status    Status
	reason    Reason
	retryable bool
	requestID string
	req       Request
	ws        *workspace.Info
	result    *scanner.Result
	cancel    context.CancelFunc
	started   time.Time

	updates chan Transition
}

// New creates an idle Coordinator. logger and metrics may be nil.
func New(resolver PathResolver, guard SessionChecker, files FileScanner, logger *logging.Logger, metrics *telemetry.Metrics) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		resolver: resolver,
		guard:    guard,
		files:    files,
		logger:   logger.Named("search"),
		metrics:  metrics,
		tracer:   otel.Tracer(instrumentationName),
		status:   StatusIdle,
		updates:  make(chan Transition, 64),
	}
}

// Updates returns the status notification channel. Notifications are
// best-effort: a slow consumer may miss intermediate transitions, and
// Status remains the authoritative view.
func (c *Coordinator) Updates() <-chan Transition {
	return c.updates
}

// Status returns a point-in-time snapshot.
func (c *Coordinator) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		RequestID: c.requestID,
		Status:    c.status,
		Reason:    c.reason,
		Retryable: c.retryable,
		Workspace: c.ws,
		Result:    c.result,
	}
}

// Submit accepts a request and starts the pipeline. Requests with an empty
// path or pattern fail immediately, before any backend probe. Returns the
// request ID.
func (c *Coordinator) Submit(req Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusIdle {
		return "", fmt.Errorf("%w: status %s", ErrBusy, c.status)
	}

	c.requestID = uuid.New().String()
	c.req = req
	c.ws = nil
	c.result = nil
	c.reason = ReasonNone
	c.retryable = false
	c.started = time.Now()

	if req.Path == "" {
		c.failLocked(ReasonMissingPath)
		return c.requestID, nil
	}
	if req.Pattern == "" {
		c.failLocked(ReasonMissingPattern)
		return c.requestID, nil
	}

	c.setStatusLocked(StatusValidating)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)

	return c.requestID, nil
}

// Retry re-enters authentication after a recoverable failure. The workspace
// resolution from the original pass is kept; the session is re-probed from
// scratch.
func (c *Coordinator) Retry() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusFailed || !c.retryable {
		return ErrNotRetryable
	}

	c.reason = ReasonNone
	c.retryable = false

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setStatusLocked(StatusAuthenticating)
	go c.runFromAuthenticate(ctx)
	return nil
}

// Cancel aborts the current request. From a running state the pipeline
// stops at its next cooperative check; from a recoverable failure it closes
// the retry window. Partial results are always discarded. Cancelling an
// idle or terminal coordinator is a no-op.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case StatusValidating, StatusAuthenticating, StatusScanning:
		if c.cancel != nil {
			c.cancel()
		}
	case StatusFailed:
		if c.retryable {
			c.closeRetryLocked()
		}
	}
}

// Ack acknowledges a terminal status and returns the coordinator to idle.
func (c *Coordinator) Ack() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.status.Terminal() {
		return fmt.Errorf("%w: status %s", ErrNotTerminal, c.status)
	}
	if c.status == StatusFailed && c.retryable {
		// Abandoning a recoverable failure is an implicit Cancel.
		c.closeRetryLocked()
	}

	c.status = StatusIdle
	c.reason = ReasonNone
	c.retryable = false
	c.requestID = ""
	c.req = Request{}
	c.ws = nil
	c.result = nil
	c.cancel = nil
	return nil
}

// Wait blocks until the current request reaches a terminal status, then
// returns its snapshot. It combines update notifications with polling so a
// dropped notification cannot stall it.
func (c *Coordinator) Wait(ctx context.Context) (Snapshot, error) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		if snap := c.Status(); snap.Status.Terminal() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-c.updates:
		case <-ticker.C:
		}
	}
}

// run executes the pipeline from validation onward.
func (c *Coordinator) run(ctx context.Context) {
	ctx, span := c.tracer.Start(ctx, "search.validate",
		trace.WithAttributes(
			attribute.String("request_id", c.requestID),
			attribute.String("path", c.req.Path)))

	ws, err := c.resolver.Resolve(ctx, c.req.Path)
	span.End()
	if err != nil {
		c.fail(reasonForError(err), err)
		return
	}

	c.mu.Lock()
	c.ws = ws
	c.setStatusLocked(StatusAuthenticating)
	c.mu.Unlock()

	c.authenticate(ctx)
}

// runFromAuthenticate resumes after a Retry, skipping validation.
func (c *Coordinator) runFromAuthenticate(ctx context.Context) {
	c.authenticate(ctx)
}

func (c *Coordinator) authenticate(ctx context.Context) {
	ctx, span := c.tracer.Start(ctx, "search.authenticate",
		trace.WithAttributes(attribute.String("request_id", c.requestID)))
	state, err := c.guard.Check(ctx)
	span.End()
	if err != nil {
		c.fail(reasonForError(err), err)
		return
	}

	switch state {
	case session.LoggedOut:
		c.failRecoverable(ReasonNotLoggedIn)
		return
	case session.Expired:
		c.failRecoverable(ReasonSessionExpired)
		return
	}

	c.scan(ctx)
}

func (c *Coordinator) scan(ctx context.Context) {
	// The pattern is compiled before Scanning is entered, so a malformed
	// regex never triggers file I/O.
	matcher, err := pattern.Compile(c.req.Pattern, c.req.IsRegex, c.req.CaseSensitive)
	if err != nil {
		c.fail(reasonForError(err), err)
		return
	}

	c.mu.Lock()
	root := c.ws.SearchRoot
	c.setStatusLocked(StatusScanning)
	c.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "search.scan",
		trace.WithAttributes(
			attribute.String("request_id", c.requestID),
			attribute.String("root", root)))
	result, err := c.files.Scan(ctx, root, matcher)
	span.End()
	if err != nil {
		c.fail(reasonForError(err), err)
		return
	}

	c.complete(result)
}

func (c *Coordinator) complete(result *scanner.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.result = result
	c.setStatusLocked(StatusCompleted)

	elapsed := time.Since(c.started)
	c.metrics.ObserveSearch("completed", elapsed)
	c.metrics.ObserveScan(result.ScannedFiles, result.SkippedFiles, result.MatchedLineCount())

	c.logger.Info("search completed",
		zap.String("request_id", c.requestID),
		zap.Int("matched_files", len(result.Files)),
		zap.Int("matched_lines", result.MatchedLineCount()),
		zap.Int("scanned", result.ScannedFiles),
		zap.Int("skipped", result.SkippedFiles),
		zap.Duration("elapsed", elapsed))
}

func (c *Coordinator) fail(reason Reason, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Warn("search failed",
		zap.String("request_id", c.requestID),
		zap.String("reason", string(reason)),
		zap.Error(err))
	c.failLocked(reason)
}

func (c *Coordinator) failRecoverable(reason Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Info("search needs login",
		zap.String("request_id", c.requestID),
		zap.String("reason", string(reason)))
	c.failLocked(reason)
}

// closeRetryLocked shuts the retry window of a recoverable failure without
// counting a second terminal outcome. Caller holds c.mu.
func (c *Coordinator) closeRetryLocked() {
	c.reason = ReasonCancelled
	c.retryable = false
	c.setStatusLocked(StatusFailed)
}

// failLocked transitions to Failed. Caller holds c.mu.
func (c *Coordinator) failLocked(reason Reason) {
	c.reason = reason
	c.retryable = reason.Recoverable()
	c.result = nil
	c.setStatusLocked(StatusFailed)
	c.metrics.ObserveSearch(string(reason), time.Since(c.started))
}

// setStatusLocked records a transition and publishes it. Caller holds c.mu.
func (c *Coordinator) setStatusLocked(status Status) {
	c.status = status
	t := Transition{RequestID: c.requestID, Status: status, Reason: c.reason}
	select {
	case c.updates <- t:
	default:
		// Consumer is behind; Status() remains authoritative.
	}
}

// reasonForError maps pipeline errors onto the boundary vocabulary.
func reasonForError(err error) Reason {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	case errors.Is(err, workspace.ErrInvalidPath):
		return ReasonInvalidPath
	case errors.Is(err, workspace.ErrClientRootConflict):
		return ReasonClientRootConflict
	case errors.Is(err, pattern.ErrEmptyPattern):
		return ReasonMissingPattern
	case errors.Is(err, pattern.ErrInvalidPattern):
		return ReasonInvalidPattern
	default:
		return ReasonBackendError
	}
}
