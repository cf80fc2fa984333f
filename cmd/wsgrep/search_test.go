package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/wsgrep/internal/backend"
	"github.com/fyrsmithlabs/wsgrep/internal/config"
	"github.com/fyrsmithlabs/wsgrep/internal/pattern"
	"github.com/fyrsmithlabs/wsgrep/internal/search"
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		want    any
		wantErr bool
	}{
		{name: "git", typ: config.BackendGit, want: &backend.GitClient{}},
		{name: "perforce", typ: config.BackendPerforce, want: &backend.PerforceClient{}},
		{name: "unknown", typ: "svn", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Backend.Type = tt.typ
			cfg.Backend.P4.Binary = "p4"
			cfg.Backend.P4.Timeout = 30

			client, err := newBackend(cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, client)
		})
	}
}

func TestWorkspaceScannerLoadsIgnoreRules(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.log\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.go"), []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "debug.log"), []byte("x = 1\n"), 0o644))

	ws := &workspaceScanner{cfg: config.ScannerConfig{
		Workers:     2,
		IgnoreFiles: []string{".gitignore"},
	}}

	m, err := pattern.Compile("x", false, false)
	require.NoError(t, err)

	result, err := ws.Scan(context.Background(), root, m)
	require.NoError(t, err)

	require.Len(t, result.Files, 1)
	assert.Equal(t, "app.go", result.Files[0].Path)
	assert.Equal(t, 2, result.ScannedFiles)
}

func TestApplyWorkersOverride(t *testing.T) {
	// A nonexistent path yields a defaults-only config.
	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	base := cfg.Scanner.Workers

	require.NoError(t, applyWorkersOverride(cfg, 0))
	assert.Equal(t, base, cfg.Scanner.Workers)

	require.NoError(t, applyWorkersOverride(cfg, 8))
	assert.Equal(t, 8, cfg.Scanner.Workers)

	// The flag is bounded the same way the config file is.
	assert.Error(t, applyWorkersOverride(cfg, 1000))
}

func TestFailureMessages(t *testing.T) {
	// Every reason gets a human message distinct from the fallback.
	reasons := []search.Reason{
		search.ReasonMissingPath,
		search.ReasonInvalidPath,
		search.ReasonMissingPattern,
		search.ReasonInvalidPattern,
		search.ReasonNotLoggedIn,
		search.ReasonSessionExpired,
		search.ReasonClientRootConflict,
		search.ReasonCancelled,
	}
	fallback := failureMessage(search.ReasonBackendError)
	for _, r := range reasons {
		assert.NotEqual(t, fallback, failureMessage(r), "reason %s", r)
	}

	assert.Contains(t, failureError(search.Snapshot{
		Status: search.StatusFailed,
		Reason: search.ReasonSessionExpired,
	}).Error(), "log in")
}

func TestPluralMatches(t *testing.T) {
	assert.Equal(t, "1 match", pluralMatches(1))
	assert.Equal(t, "2 matches", pluralMatches(2))
}
