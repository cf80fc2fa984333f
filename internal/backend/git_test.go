package backend

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitClientDescribeClient(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	client := NewGitClient()
	spec, err := client.DescribeClient(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, dir, spec.Root)
	assert.NotEmpty(t, spec.Name)
}

func TestGitClientDescribeClientNoRepo(t *testing.T) {
	client := NewGitClient()
	_, err := client.DescribeClient(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNoClient)
}

func TestGitClientNameFromRemote(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{"git@github.com:fyrsmithlabs/widgets.git"},
	})
	require.NoError(t, err)

	client := NewGitClient()
	spec, err := client.DescribeClient(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "widgets", spec.Name)
}

func TestGitClientSessionAlwaysActive(t *testing.T) {
	client := NewGitClient()
	info, err := client.SessionStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, info.LoggedIn)
	assert.False(t, info.Expired)
}

func TestRepoNameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"git@github.com:fyrsmithlabs/widgets.git", "widgets"},
		{"https://github.com/fyrsmithlabs/widgets.git", "widgets"},
		{"https://example.com/group/sub/project", "project"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, repoNameFromURL(tt.url))
		})
	}
}
