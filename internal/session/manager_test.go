package session

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/inventory"
	"github.com/reconlab/recon/internal/logger"
	"github.com/reconlab/recon/pkg/transport"
	transporttest "github.com/reconlab/recon/pkg/transport/testing"
)

var labID = inventory.HostIdentity{Host: "10.0.0.5", User: "lab"}

// dialTo returns a DialFunc that hands out the given mock, invoking phases
// the way the real dialer does.
func dialTo(mock *transporttest.MockTransport) DialFunc {
	return func(target transport.Target, creds transport.Credentials, timeout time.Duration, onPhase func(transport.Phase)) (transport.Conn, error) {
		if onPhase != nil {
			onPhase(transport.PhaseConnecting)
			onPhase(transport.PhaseAuthenticating)
		}
		return mock, nil
	}
}

func dialFailing(err error) DialFunc {
	return func(target transport.Target, creds transport.Credentials, timeout time.Duration, onPhase func(transport.Phase)) (transport.Conn, error) {
		if onPhase != nil {
			onPhase(transport.PhaseConnecting)
		}
		return nil, err
	}
}

func newManager(t *testing.T, dial DialFunc) *Manager {
	t.Helper()
	store := inventory.NewStore(t.TempDir(), logger.Noop())
	return NewManager(store, Options{Dial: dial})
}

func TestConnect_ValidCredentials(t *testing.T) {
	mock := transporttest.NewMockTransport("10.0.0.5", "lab")
	m := newManager(t, dialTo(mock))

	require.NoError(t, m.Connect(labID, transport.Credentials{Password: "hunter2"}))

	state, reason := m.State()
	assert.Equal(t, StateConnected, state)
	assert.NoError(t, reason)
	assert.Equal(t, labID, m.Identity())
	assert.NotNil(t, m.Record(), "connect must load the cached inventory")
}

func TestConnect_AuthFailure(t *testing.T) {
	authErr := errors.New(errors.ErrAuth, "Authentication failed", "")
	m := newManager(t, dialFailing(authErr))

	err := m.Connect(labID, transport.Credentials{Password: "wrong"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAuth))

	state, reason := m.State()
	assert.Equal(t, StateFailed, state)
	assert.True(t, errors.IsCode(reason, errors.ErrAuth))
}

func TestConnect_RestartsAfterFailure(t *testing.T) {
	mock := transporttest.NewMockTransport("10.0.0.5", "lab")
	fail := dialFailing(errors.New(errors.ErrNetwork, "unreachable", ""))
	succeed := dialTo(mock)

	store := inventory.NewStore(t.TempDir(), logger.Noop())
	attempt := 0
	m := NewManager(store, Options{Dial: func(target transport.Target, creds transport.Credentials, timeout time.Duration, onPhase func(transport.Phase)) (transport.Conn, error) {
		attempt++
		if attempt == 1 {
			return fail(target, creds, timeout, onPhase)
		}
		return succeed(target, creds, timeout, onPhase)
	}})

	require.Error(t, m.Connect(labID, transport.Credentials{Password: "x"}))
	require.NoError(t, m.Connect(labID, transport.Credentials{Password: "x"}))

	state, _ := m.State()
	assert.Equal(t, StateConnected, state)
}

func TestConnect_WhileConnected(t *testing.T) {
	mock := transporttest.NewMockTransport("10.0.0.5", "lab")
	m := newManager(t, dialTo(mock))

	require.NoError(t, m.Connect(labID, transport.Credentials{Password: "x"}))
	err := m.Connect(labID, transport.Credentials{Password: "x"})
	assert.Error(t, err, "second connect without disconnect must fail")
}

type trackedCloser struct {
	closed int
}

func (c *trackedCloser) Close() error {
	c.closed++
	return nil
}

func TestDisconnect_ClosesRegisteredChannels(t *testing.T) {
	mock := transporttest.NewMockTransport("10.0.0.5", "lab")
	m := newManager(t, dialTo(mock))
	require.NoError(t, m.Connect(labID, transport.Credentials{Password: "x"}))

	tun := &trackedCloser{}
	shell := &trackedCloser{}
	m.Register(tun)
	m.Register(shell)

	require.NoError(t, m.Disconnect())

	assert.Equal(t, 1, tun.closed)
	assert.Equal(t, 1, shell.closed)
	assert.True(t, mock.Closed())

	state, _ := m.State()
	assert.Equal(t, StateDisconnected, state)

	_, err := m.Conn()
	assert.True(t, errors.IsCode(err, errors.ErrChannel),
		"operations after disconnect fail with a channel error")
}

func TestDisconnect_Idempotent(t *testing.T) {
	mock := transporttest.NewMockTransport("10.0.0.5", "lab")
	m := newManager(t, dialTo(mock))
	require.NoError(t, m.Connect(labID, transport.Credentials{Password: "x"}))

	require.NoError(t, m.Disconnect())
	require.NoError(t, m.Disconnect())
}

func TestRelease_DetachesWithoutClosing(t *testing.T) {
	mock := transporttest.NewMockTransport("10.0.0.5", "lab")
	m := newManager(t, dialTo(mock))
	require.NoError(t, m.Connect(labID, transport.Credentials{Password: "x"}))

	c := &trackedCloser{}
	handle := m.Register(c)
	m.Release(handle)

	require.NoError(t, m.Disconnect())
	assert.Equal(t, 0, c.closed, "released closers are not closed at disconnect")
}

func TestKeepalive_FailureFlipsToFailed(t *testing.T) {
	mock := transporttest.NewMockTransport("10.0.0.5", "lab")
	store := inventory.NewStore(t.TempDir(), logger.Noop())
	m := NewManager(store, Options{Dial: dialTo(mock), Keepalive: 10 * time.Millisecond})

	require.NoError(t, m.Connect(labID, transport.Credentials{Password: "x"}))

	ch := &trackedCloser{}
	m.Register(ch)
	mock.SetPingError(errors.New(errors.ErrChannel, "connection lost", ""))

	assert.Eventually(t, func() bool {
		state, _ := m.State()
		return state == StateFailed
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, ch.closed, "lost transport force-closes session channels")
	assert.True(t, mock.Closed())
}

func TestState_ConcurrentPolling(t *testing.T) {
	mock := transporttest.NewMockTransport("10.0.0.5", "lab")
	m := newManager(t, dialTo(mock))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			m.State()
			m.Identity()
		}
	}()

	require.NoError(t, m.Connect(labID, transport.Credentials{Password: "x"}))
	<-done
	require.NoError(t, m.Disconnect())
}

var _ io.Closer = (*trackedCloser)(nil)
