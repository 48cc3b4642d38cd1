// Package tunnel forwards a local port to a discovered node through the
// remote host. One tunnel at a time: opening a second while one is up is a
// conflict, not a queue.
package tunnel

import (
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/logger"
	"github.com/reconlab/recon/pkg/transport"
)

// DefaultOpenTimeout bounds the verification probe when the manager carries
// no explicit timeout.
const DefaultOpenTimeout = 10 * time.Second

// State is the tunnel lifecycle state.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Manager owns the single active tunnel.
type Manager struct {
	dialer transport.Dialer
	log    logger.Logger

	// OpenTimeout bounds the verification probe in Open. Zero means
	// DefaultOpenTimeout. Set before the first Open.
	OpenTimeout time.Duration

	mu     sync.Mutex
	active *Tunnel
}

// NewManager creates a tunnel manager on top of the given dialer.
func NewManager(dialer transport.Dialer, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Noop()
	}
	return &Manager{dialer: dialer, log: log}
}

// Active returns the current tunnel, or nil when none is up.
func (m *Manager) Active() *Tunnel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Open forwards a fresh local port to nodeIP:remotePort through the remote
// host. A tunnel that is not yet closed blocks a new one with a TUNNEL error.
func (m *Manager) Open(nodeIP string, remotePort int) (*Tunnel, error) {
	m.mu.Lock()
	if m.active != nil && m.active.State() != StateClosed {
		active := m.active
		m.mu.Unlock()
		return nil, errors.New(errors.ErrTunnelConflict,
			"A tunnel to "+active.Node()+" is already "+active.State().String(),
			"Close it first: only one tunnel runs at a time")
	}

	t := &Tunnel{
		mgr:   m,
		node:  nodeIP,
		port:  remotePort,
		state: StateOpening,
		conns: make(map[net.Conn]struct{}),
	}
	m.active = t
	m.mu.Unlock()

	// Verify the far side before listening locally, so an unreachable node
	// fails the open instead of the first browser request.
	probe, err := m.openProbe(t.remoteAddr())
	if err != nil {
		t.fail(err)
		return nil, err
	}
	probe.Close()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		wrapped := errors.WrapWithCode(err, errors.ErrTunnelAlloc,
			"Can't open a local listening port",
			"Check local firewall settings")
		t.fail(wrapped)
		return nil, wrapped
	}

	t.mu.Lock()
	t.listener = listener
	t.state = StateOpen
	t.mu.Unlock()

	go t.acceptLoop(listener)

	m.log.Info("tunnel open: %s -> %s", listener.Addr(), t.remoteAddr())
	return t, nil
}

// openProbe opens the verification channel with a deadline. OpenDirect has
// no timeout of its own; an unresponsive far side would otherwise hang the
// open until the SSH transport notices.
func (m *Manager) openProbe(addr string) (net.Conn, error) {
	timeout := m.OpenTimeout
	if timeout <= 0 {
		timeout = DefaultOpenTimeout
	}

	type opened struct {
		conn net.Conn
		err  error
	}
	ch := make(chan opened, 1)
	go func() {
		conn, err := m.dialer.OpenDirect(addr)
		ch <- opened{conn, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case o := <-ch:
		return o.conn, o.err
	case <-timer.C:
		go func() {
			if o := <-ch; o.conn != nil {
				o.conn.Close()
			}
		}()
		return nil, errors.New(errors.ErrTimeout,
			"Timed out opening a channel to "+addr,
			"The node answered ping but may be filtering this port")
	}
}

// Tunnel is one local-to-node forward. Closing it is idempotent and
// force-closes every connection riding it.
type Tunnel struct {
	mgr  *Manager
	node string
	port int

	mu       sync.Mutex
	state    State
	err      error
	listener net.Listener
	conns    map[net.Conn]struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Node returns the target node address.
func (t *Tunnel) Node() string { return t.node }

// LocalAddr returns the listening address, e.g. "127.0.0.1:49152".
func (t *Tunnel) LocalAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// State returns the lifecycle state.
func (t *Tunnel) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the failure cause. It stays set after a failed tunnel settles
// to Closed.
func (t *Tunnel) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// fail records the cause, walks the tunnel through Failed, and settles it to
// Closed so the manager slot frees up. Used for opens that never handed the
// caller a tunnel to close.
func (t *Tunnel) fail(err error) {
	t.mu.Lock()
	t.state = StateFailed
	t.err = err
	t.mu.Unlock()
	t.Close()
}

// Close stops the listener, drops every forwarded connection, and settles the
// tunnel to Closed. Safe to call repeatedly and from any state.
func (t *Tunnel) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.state = StateClosing
		listener := t.listener
		conns := make([]net.Conn, 0, len(t.conns))
		for c := range t.conns {
			conns = append(conns, c)
		}
		t.mu.Unlock()

		if listener != nil {
			listener.Close()
		}
		for _, c := range conns {
			c.Close()
		}
		t.wg.Wait()

		t.setState(StateClosed)
	})
	return nil
}

func (t *Tunnel) remoteAddr() string {
	return net.JoinHostPort(t.node, strconv.Itoa(t.port))
}

func (t *Tunnel) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Tunnel) acceptLoop(listener net.Listener) {
	for {
		local, err := listener.Accept()
		if err != nil {
			t.mu.Lock()
			if t.state == StateOpen {
				// Listener died under us rather than through Close.
				t.state = StateFailed
				t.err = errors.WrapWithCode(err, errors.ErrTunnel,
					"Tunnel listener failed", "Close and reopen the tunnel")
			}
			t.mu.Unlock()
			return
		}

		t.mu.Lock()
		if t.state != StateOpen {
			t.mu.Unlock()
			local.Close()
			return
		}
		t.conns[local] = struct{}{}
		t.wg.Add(1)
		t.mu.Unlock()

		go t.forward(local)
	}
}

// forward pumps one accepted connection through a fresh channel to the node.
func (t *Tunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		delete(t.conns, local)
		t.mu.Unlock()
		local.Close()
	}()

	remote, err := t.mgr.dialer.OpenDirect(t.remoteAddr())
	if err != nil {
		t.mgr.log.Warn("tunnel channel to %s failed: %v", t.remoteAddr(), err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(remote, local)
		remote.Close()
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(local, remote)
		local.Close()
		done <- struct{}{}
	}()
	<-done
	<-done
}
