// Package workspace resolves a requested search path to the version-control
// client workspace that owns it. The resolved root, never the raw request
// path, is the boundary later stages are allowed to scan.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wsgrep/internal/backend"
	"github.com/fyrsmithlabs/wsgrep/internal/logging"
)

// Common errors.
var (
	// ErrInvalidPath indicates the path does not exist or is not a directory.
	ErrInvalidPath = errors.New("invalid path")

	// ErrClientRootConflict indicates the backend's client root does not
	// contain the requested path. Scanning outside the recognized root
	// could silently search an unrelated checkout, so this is a hard stop.
	ErrClientRootConflict = errors.New("path is outside the client workspace root")
)

// Info identifies the resolved workspace.
type Info struct {
	// ClientRoot is the absolute root the client maps to.
	ClientRoot string

	// ClientName is the workspace identity.
	ClientName string

	// SearchRoot is the validated absolute form of the requested path,
	// always equal to or below ClientRoot.
	SearchRoot string
}

// Resolver validates paths against the version-control backend.
//
// Workspace mappings can change out of band, so Info is derived fresh per
// request and never cached.
type Resolver struct {
	client backend.Client
	logger *logging.Logger
}

// NewResolver creates a Resolver over the given backend.
func NewResolver(client backend.Client, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{client: client, logger: logger.Named("workspace")}
}

// Resolve validates path and returns the owning workspace.
func (r *Resolver) Resolve(ctx context.Context, path string) (*Info, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPath, path, err)
	}
	abs = filepath.Clean(abs)

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, abs)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, abs)
	}

	spec, err := r.client.DescribeClient(ctx, abs)
	if err != nil {
		if errors.Is(err, backend.ErrNoClient) {
			return nil, fmt.Errorf("%w: %s", ErrClientRootConflict, abs)
		}
		return nil, fmt.Errorf("describing client for %s: %w", abs, err)
	}

	root := filepath.Clean(spec.Root)
	if !contains(root, abs) {
		r.logger.Warn("client root conflict",
			zap.String("path", abs),
			zap.String("client_root", root),
			zap.String("client", spec.Name))
		return nil, fmt.Errorf("%w: %s is outside %s", ErrClientRootConflict, abs, root)
	}

	r.logger.Debug("workspace resolved",
		zap.String("path", abs),
		zap.String("client_root", root),
		zap.String("client", spec.Name))

	return &Info{
		ClientRoot: root,
		ClientName: spec.Name,
		SearchRoot: abs,
	}, nil
}

// contains reports whether path equals root or lies below it.
func contains(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
