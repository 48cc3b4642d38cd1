// Package session owns the authenticated connection lifecycle: a state
// machine over the transport, the registry of channels that must die with
// the session, and the cache load that gives panels data at connect time.
package session

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/inventory"
	"github.com/reconlab/recon/internal/logger"
	"github.com/reconlab/recon/pkg/transport"
)

// State is the session connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateConnected
	StateDisconnected
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DialFunc establishes a transport connection. Swapped out in tests.
type DialFunc func(target transport.Target, creds transport.Credentials, timeout time.Duration, onPhase func(transport.Phase)) (transport.Conn, error)

// defaultDial adapts transport.DialPhased to DialFunc.
func defaultDial(target transport.Target, creds transport.Credentials, timeout time.Duration, onPhase func(transport.Phase)) (transport.Conn, error) {
	return transport.DialPhased(target, creds, timeout, onPhase)
}

// Options configures a Manager.
type Options struct {
	// ConnectTimeout bounds dial plus handshake.
	ConnectTimeout time.Duration
	// Keepalive is the liveness probe interval; zero disables the watcher.
	Keepalive time.Duration
	// Dial overrides the transport dialer (tests).
	Dial DialFunc
	// Logger receives session lifecycle messages.
	Logger logger.Logger
}

// Manager is the session state machine. One live session at a time: a new
// Connect is only legal from Idle, Disconnected, or Failed.
type Manager struct {
	store *inventory.Store
	log   logger.Logger
	dial  DialFunc
	opts  Options

	mu       sync.RWMutex
	state    State
	reason   error
	identity inventory.HostIdentity
	conn     transport.Conn
	record   *inventory.HostRecord
	closers  map[string]io.Closer
	stopKA   chan struct{}
}

// NewManager creates a Manager bound to the given inventory store.
func NewManager(store *inventory.Store, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	if opts.Dial == nil {
		opts.Dial = defaultDial
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	return &Manager{
		store:   store,
		log:     opts.Logger,
		dial:    opts.Dial,
		opts:    opts,
		state:   StateIdle,
		closers: make(map[string]io.Closer),
	}
}

// Connect runs the state machine to Connected, or to Failed with the typed
// cause. On success the cached inventory for the identity is loaded so
// discovery panels have data before any remote traffic.
func (m *Manager) Connect(id inventory.HostIdentity, creds transport.Credentials) error {
	m.mu.Lock()
	switch m.state {
	case StateIdle, StateDisconnected, StateFailed:
	default:
		state := m.state
		m.mu.Unlock()
		return errors.New(errors.ErrNetwork,
			"A session is already "+state.String(),
			"Disconnect before connecting again")
	}
	m.state = StateConnecting
	m.reason = nil
	m.identity = id
	m.mu.Unlock()

	onPhase := func(p transport.Phase) {
		if p == transport.PhaseAuthenticating {
			m.setState(StateAuthenticating)
		}
	}

	conn, err := m.dial(transport.Target{Host: id.Host, User: id.User}, creds, m.opts.ConnectTimeout, onPhase)
	if err != nil {
		m.mu.Lock()
		m.state = StateFailed
		m.reason = err
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.state = StateConnected
	m.record = m.store.Record(id)
	m.stopKA = make(chan struct{})
	stopKA := m.stopKA
	m.mu.Unlock()

	if err := m.store.Touch(id); err != nil {
		// Cache trouble does not invalidate a live connection.
		m.log.Warn("cannot persist host record for %s: %v", id.Key(), err)
	}

	if m.opts.Keepalive > 0 {
		go m.keepaliveLoop(conn, stopKA)
	}

	m.log.Debug("session connected to %s", id.Key())
	return nil
}

// Disconnect closes every registered channel and the transport, idempotent.
func (m *Manager) Disconnect() error {
	return m.teardown(StateDisconnected, nil)
}

// setState transitions the state machine under lock.
func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// State returns the current state and, for Failed, its cause.
// Cheap and safe to poll.
func (m *Manager) State() (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.reason
}

// Identity returns the identity of the current or last session.
func (m *Manager) Identity() inventory.HostIdentity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// Conn returns the live transport, or a CHANNEL error if not connected.
func (m *Manager) Conn() (transport.Conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateConnected || m.conn == nil {
		return nil, errors.New(errors.ErrChannel,
			"No connected session",
			"Connect first")
	}
	return m.conn, nil
}

// Record returns the cached inventory loaded at connect time, or nil.
func (m *Manager) Record() *inventory.HostRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record
}

// Store exposes the inventory store for discovery services.
func (m *Manager) Store() *inventory.Store {
	return m.store
}

// Register attaches a closer (tunnel, spawned channel) to the session's
// lifetime and returns a handle for Release.
func (m *Manager) Register(c io.Closer) string {
	handle := uuid.NewString()
	m.mu.Lock()
	m.closers[handle] = c
	m.mu.Unlock()
	return handle
}

// Release detaches a closer that ended on its own. The closer is not closed.
func (m *Manager) Release(handle string) {
	m.mu.Lock()
	delete(m.closers, handle)
	m.mu.Unlock()
}

// keepaliveLoop probes the transport until stopped; a failed probe flips the
// session to Failed and force-closes everything.
func (m *Manager) keepaliveLoop(conn transport.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.opts.Keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				m.log.Warn("keepalive to %s failed: %v", conn.Target().Host, err)
				_ = m.teardown(StateFailed, err)
				return
			}
		}
	}
}

// teardown moves to the terminal state, closing registered channels first,
// then the transport. Idempotent across repeated disconnects.
func (m *Manager) teardown(terminal State, reason error) error {
	m.mu.Lock()
	if m.state != StateConnected && m.state != StateFailed {
		// Never connected or already torn down; just settle the state.
		if m.state != StateIdle {
			m.state = terminal
			m.reason = reason
		}
		m.mu.Unlock()
		return nil
	}

	conn := m.conn
	closers := m.closers
	stopKA := m.stopKA
	m.conn = nil
	m.closers = make(map[string]io.Closer)
	m.stopKA = nil
	m.state = terminal
	m.reason = reason
	m.mu.Unlock()

	if stopKA != nil {
		close(stopKA)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			m.log.Debug("closing session channel: %v", err)
		}
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
