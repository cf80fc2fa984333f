package backend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// GitClient treats the enclosing git worktree as the client workspace.
// Git has no login session, so sessions are always active.
type GitClient struct{}

// NewGitClient creates a git-backed Client.
func NewGitClient() *GitClient {
	return &GitClient{}
}

// DescribeClient resolves the git worktree containing path.
func (c *GitClient) DescribeClient(ctx context.Context, path string) (*ClientSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNoClient, path)
		}
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		// Bare repositories have no worktree and thus no searchable root.
		return nil, fmt.Errorf("%w: %s: %v", ErrNoClient, path, err)
	}

	root := wt.Filesystem.Root()
	return &ClientSpec{
		Root: root,
		Name: clientName(repo, root),
	}, nil
}

// SessionStatus always reports an active session: local git access needs no
// login ticket.
func (c *GitClient) SessionStatus(ctx context.Context) (SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return SessionInfo{}, err
	}
	return SessionInfo{LoggedIn: true}, nil
}

// clientName derives a workspace identity: the origin remote's repository
// name when available, otherwise the root directory name.
func clientName(repo *git.Repository, root string) string {
	if remote, err := repo.Remote("origin"); err == nil {
		urls := remote.Config().URLs
		if len(urls) > 0 {
			if name := repoNameFromURL(urls[0]); name != "" {
				return name
			}
		}
	}
	return filepath.Base(root)
}

// repoNameFromURL extracts the repository name from a remote URL.
// Supports git@host:user/repo.git and https://host/user/repo.git forms.
func repoNameFromURL(url string) string {
	trimmed := strings.TrimSuffix(url, ".git")
	trimmed = strings.TrimRight(trimmed, "/")
	if i := strings.LastIndexAny(trimmed, "/:"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return trimmed
}
