package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/wsgrep/internal/backend"
)

type fakeClient struct {
	info   backend.SessionInfo
	err    error
	probes int
}

func (f *fakeClient) DescribeClient(ctx context.Context, path string) (*backend.ClientSpec, error) {
	return nil, backend.ErrNoClient
}

func (f *fakeClient) SessionStatus(ctx context.Context) (backend.SessionInfo, error) {
	f.probes++
	return f.info, f.err
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		info backend.SessionInfo
		want State
	}{
		{"logged out", backend.SessionInfo{LoggedIn: false}, LoggedOut},
		{"active", backend.SessionInfo{LoggedIn: true}, Active},
		{"expired", backend.SessionInfo{LoggedIn: true, Expired: true}, Expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(&fakeClient{info: tt.info}, nil)
			state, err := g.Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestCheckProbesEveryCall(t *testing.T) {
	client := &fakeClient{info: backend.SessionInfo{LoggedIn: true, Expired: true}}
	g := NewGuard(client, nil)

	state, err := g.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Expired, state)

	// Login happened out of band; the next check must see it.
	client.info = backend.SessionInfo{LoggedIn: true}
	state, err = g.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Active, state)
	assert.Equal(t, 2, client.probes)
}

func TestCheckBackendError(t *testing.T) {
	probeErr := errors.New("server unreachable")
	g := NewGuard(&fakeClient{err: probeErr}, nil)

	_, err := g.Check(context.Background())
	assert.ErrorIs(t, err, probeErr)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "logged_out", LoggedOut.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "expired", Expired.String())
}
