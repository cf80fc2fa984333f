package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/wsgrep/internal/pattern"
	"github.com/fyrsmithlabs/wsgrep/internal/scanner"
	"github.com/fyrsmithlabs/wsgrep/internal/session"
	"github.com/fyrsmithlabs/wsgrep/internal/workspace"
)

type fakeResolver struct {
	info  *workspace.Info
	err   error
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, path string) (*workspace.Info, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

type fakeGuard struct {
	states []session.State // consumed in order; last repeats
	err    error
	calls  int
}

func (f *fakeGuard) Check(ctx context.Context) (session.State, error) {
	f.calls++
	if f.err != nil {
		return session.LoggedOut, f.err
	}
	i := f.calls - 1
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	return f.states[i], nil
}

type fakeScanner struct {
	result *scanner.Result
	calls  int
	root   string
	block  bool // wait for ctx cancellation instead of returning
}

func (f *fakeScanner) Scan(ctx context.Context, root string, m pattern.Matcher) (*scanner.Result, error) {
	f.calls++
	f.root = root
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.result == nil {
		return &scanner.Result{}, nil
	}
	return f.result, nil
}

func newTestCoordinator(r *fakeResolver, g *fakeGuard, s *fakeScanner) *Coordinator {
	return New(r, g, s, nil, nil)
}

func activeFixture() (*fakeResolver, *fakeGuard, *fakeScanner) {
	return &fakeResolver{info: &workspace.Info{ClientRoot: "/ws", ClientName: "c", SearchRoot: "/ws/src"}},
		&fakeGuard{states: []session.State{session.Active}},
		&fakeScanner{result: &scanner.Result{ScannedFiles: 3}}
}

func wait(t *testing.T, c *Coordinator) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := c.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func TestSubmitMissingInputs(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want Reason
	}{
		{"missing path", Request{Pattern: "x"}, ReasonMissingPath},
		{"missing pattern", Request{Path: "/ws"}, ReasonMissingPattern},
		{"both missing reports path first", Request{}, ReasonMissingPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, s := activeFixture()
			c := newTestCoordinator(r, g, s)

			id, err := c.Submit(tt.req)
			require.NoError(t, err)
			assert.NotEmpty(t, id)

			snap := wait(t, c)
			assert.Equal(t, StatusFailed, snap.Status)
			assert.Equal(t, tt.want, snap.Reason)
			assert.False(t, snap.Retryable)

			// Rejected at submission: no backend activity at all.
			assert.Zero(t, r.calls)
			assert.Zero(t, g.calls)
			assert.Zero(t, s.calls)
		})
	}
}

func TestPipelineCompletes(t *testing.T) {
	r, g, s := activeFixture()
	c := newTestCoordinator(r, g, s)

	id, err := c.Submit(Request{Path: "/ws/src", Pattern: "hello"})
	require.NoError(t, err)

	// Poll rather than Wait so the notification channel stays intact for
	// the transition assertions below.
	require.Eventually(t, func() bool {
		return c.Status().Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	snap := c.Status()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, ReasonNone, snap.Reason)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 3, snap.Result.ScannedFiles)
	assert.Equal(t, id, snap.RequestID)

	// The scanner received the resolved root, not the raw request path.
	assert.Equal(t, "/ws/src", s.root)

	var statuses []Status
	for len(c.Updates()) > 0 {
		statuses = append(statuses, (<-c.Updates()).Status)
	}
	assert.Equal(t, []Status{StatusValidating, StatusAuthenticating, StatusScanning, StatusCompleted}, statuses)
}

func TestValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"invalid path", workspace.ErrInvalidPath, ReasonInvalidPath},
		{"root conflict", workspace.ErrClientRootConflict, ReasonClientRootConflict},
		{"backend down", errors.New("connect refused"), ReasonBackendError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, g, s := activeFixture()
			r := &fakeResolver{err: tt.err}
			c := newTestCoordinator(r, g, s)

			_, err := c.Submit(Request{Path: "/elsewhere", Pattern: "x"})
			require.NoError(t, err)

			snap := wait(t, c)
			assert.Equal(t, StatusFailed, snap.Status)
			assert.Equal(t, tt.want, snap.Reason)
			assert.False(t, snap.Retryable)
			assert.ErrorIs(t, c.Retry(), ErrNotRetryable)
			assert.Zero(t, s.calls)
		})
	}
}

func TestInvalidPatternFailsBeforeScan(t *testing.T) {
	r, g, s := activeFixture()
	c := newTestCoordinator(r, g, s)

	_, err := c.Submit(Request{Path: "/ws/src", Pattern: "(unbalanced", IsRegex: true})
	require.NoError(t, err)

	snap := wait(t, c)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, ReasonInvalidPattern, snap.Reason)
	assert.Zero(t, s.calls, "compile failure must precede file I/O")
}

func TestRetryAfterSessionExpired(t *testing.T) {
	r, _, s := activeFixture()
	g := &fakeGuard{states: []session.State{session.Expired, session.Active}}
	c := newTestCoordinator(r, g, s)

	_, err := c.Submit(Request{Path: "/ws/src", Pattern: "x"})
	require.NoError(t, err)

	snap := wait(t, c)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, ReasonSessionExpired, snap.Reason)
	assert.True(t, snap.Retryable)

	// Login happened out of band.
	require.NoError(t, c.Retry())

	snap = wait(t, c)
	assert.Equal(t, StatusCompleted, snap.Status)
	require.NotNil(t, snap.Result)

	assert.Equal(t, 1, r.calls, "retry must not re-validate the workspace")
	assert.Equal(t, 2, g.calls, "retry must re-probe the session")
}

func TestRetryAfterNotLoggedIn(t *testing.T) {
	r, _, s := activeFixture()
	g := &fakeGuard{states: []session.State{session.LoggedOut, session.LoggedOut, session.Active}}
	c := newTestCoordinator(r, g, s)

	_, err := c.Submit(Request{Path: "/ws/src", Pattern: "x"})
	require.NoError(t, err)

	snap := wait(t, c)
	assert.Equal(t, ReasonNotLoggedIn, snap.Reason)
	assert.True(t, snap.Retryable)

	// Still logged out: retry fails again but stays retryable.
	require.NoError(t, c.Retry())
	snap = wait(t, c)
	assert.Equal(t, ReasonNotLoggedIn, snap.Reason)
	assert.True(t, snap.Retryable)

	require.NoError(t, c.Retry())
	snap = wait(t, c)
	assert.Equal(t, StatusCompleted, snap.Status)
}

func TestCancelRecoverableFailure(t *testing.T) {
	r, _, s := activeFixture()
	g := &fakeGuard{states: []session.State{session.LoggedOut}}
	c := newTestCoordinator(r, g, s)

	_, err := c.Submit(Request{Path: "/ws/src", Pattern: "x"})
	require.NoError(t, err)
	snap := wait(t, c)
	require.True(t, snap.Retryable)

	c.Cancel()

	snap = c.Status()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, ReasonCancelled, snap.Reason)
	assert.False(t, snap.Retryable)
	assert.ErrorIs(t, c.Retry(), ErrNotRetryable)
}

func TestCancelDuringScan(t *testing.T) {
	r, g, _ := activeFixture()
	s := &fakeScanner{block: true}
	c := newTestCoordinator(r, g, s)

	_, err := c.Submit(Request{Path: "/ws/src", Pattern: "x"})
	require.NoError(t, err)

	// Wait for the pipeline to reach Scanning, then cancel.
	require.Eventually(t, func() bool {
		return c.Status().Status == StatusScanning
	}, 5*time.Second, 5*time.Millisecond)
	c.Cancel()

	snap := wait(t, c)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, ReasonCancelled, snap.Reason)
	assert.Nil(t, snap.Result, "cancel never yields a partial result")
}

func TestAckReturnsToIdle(t *testing.T) {
	r, g, s := activeFixture()
	c := newTestCoordinator(r, g, s)

	assert.ErrorIs(t, c.Ack(), ErrNotTerminal)

	_, err := c.Submit(Request{Path: "/ws/src", Pattern: "x"})
	require.NoError(t, err)
	wait(t, c)

	require.NoError(t, c.Ack())
	snap := c.Status()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Empty(t, snap.RequestID)
	assert.Nil(t, snap.Result)

	// Ready for the next request.
	_, err = c.Submit(Request{Path: "/ws/src", Pattern: "y"})
	require.NoError(t, err)
	snap = wait(t, c)
	assert.Equal(t, StatusCompleted, snap.Status)
}

func TestSubmitWhileBusy(t *testing.T) {
	r, g, _ := activeFixture()
	s := &fakeScanner{block: true}
	c := newTestCoordinator(r, g, s)

	_, err := c.Submit(Request{Path: "/ws/src", Pattern: "x"})
	require.NoError(t, err)

	_, err = c.Submit(Request{Path: "/ws/src", Pattern: "y"})
	assert.ErrorIs(t, err, ErrBusy)

	c.Cancel()
	wait(t, c)
}

func TestReasonForError(t *testing.T) {
	tests := []struct {
		err  error
		want Reason
	}{
		{context.Canceled, ReasonCancelled},
		{workspace.ErrInvalidPath, ReasonInvalidPath},
		{workspace.ErrClientRootConflict, ReasonClientRootConflict},
		{pattern.ErrEmptyPattern, ReasonMissingPattern},
		{pattern.ErrInvalidPattern, ReasonInvalidPattern},
		{errors.New("anything else"), ReasonBackendError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reasonForError(tt.err), "%v", tt.err)
	}
}

func TestReasonRecoverable(t *testing.T) {
	assert.True(t, ReasonNotLoggedIn.Recoverable())
	assert.True(t, ReasonSessionExpired.Recoverable())
	assert.False(t, ReasonCancelled.Recoverable())
	assert.False(t, ReasonInvalidPath.Recoverable())
}
