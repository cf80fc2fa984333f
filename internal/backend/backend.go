// Package backend abstracts the version-control system wsgrep searches
// against. The core needs exactly two capabilities from it: resolving the
// client workspace that owns a path, and reporting the state of the current
// login session. Any implementation of Client is substitutable, including
// test doubles.
package backend

import (
	"context"
	"errors"
)

// Common errors.
var (
	// ErrNoClient indicates no client workspace owns the requested path.
	ErrNoClient = errors.New("no client workspace for path")

	// ErrUnavailable indicates the backend could not be reached at all,
	// e.g. the p4 binary is missing.
	ErrUnavailable = errors.New("version control backend unavailable")
)

// ClientSpec describes the client workspace that owns a path.
type ClientSpec struct {
	// Root is the absolute filesystem path the client maps to.
	Root string

	// Name is the client (workspace) identity.
	Name string
}

// SessionInfo reports the authentication state of the current session.
type SessionInfo struct {
	LoggedIn bool
	Expired  bool
}

// Client is the version-control query capability the search core depends on.
type Client interface {
	// DescribeClient resolves the client workspace owning path.
	// Returns ErrNoClient wrapped when the path is not inside any client.
	DescribeClient(ctx context.Context, path string) (*ClientSpec, error)

	// SessionStatus probes the current login session. Read-only; callers
	// must re-probe rather than cache across retries.
	SessionStatus(ctx context.Context) (SessionInfo, error)
}
