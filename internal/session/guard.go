// Package session checks the authentication state of the version-control
// session before any file content is read.
package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wsgrep/internal/backend"
	"github.com/fyrsmithlabs/wsgrep/internal/logging"
)

// State is the authentication state of the current session.
type State int

const (
	// LoggedOut means no login ticket exists.
	LoggedOut State = iota

	// Active means the session is valid.
	Active

	// Expired means a ticket exists but is stale.
	Expired
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case Active:
		return "active"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Guard probes session state through the backend.
//
// State is recomputed on every call. A Retry exists precisely to pick up an
// out-of-band login, so callers must never reuse a previous answer.
type Guard struct {
	client backend.Client
	logger *logging.Logger
}

// NewGuard creates a Guard over the given backend.
func NewGuard(client backend.Client, logger *logging.Logger) *Guard {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Guard{client: client, logger: logger.Named("session")}
}

// Check probes the backend and maps the response to a State.
func (g *Guard) Check(ctx context.Context) (State, error) {
	info, err := g.client.SessionStatus(ctx)
	if err != nil {
		return LoggedOut, fmt.Errorf("probing session status: %w", err)
	}

	state := Active
	switch {
	case !info.LoggedIn:
		state = LoggedOut
	case info.Expired:
		state = Expired
	}

	g.logger.Debug("session probed", zap.Stringer("state", state))
	return state, nil
}
