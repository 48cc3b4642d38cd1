// Package testing provides a scripted in-memory transport for tests.
package testing

import (
	"context"
	"io"
	"net"
	"regexp"
	"sync"
	"time"

	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/pkg/transport"
)

// CommandResponse defines a canned response for a command pattern.
type CommandResponse struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	// Delay simulates remote latency before the response lands.
	Delay time.Duration
}

// MockTransport simulates the SSH transport. Commands are matched first by
// exact string, then by regexp pattern, in scripting order.
type MockTransport struct {
	mu       sync.Mutex
	target   transport.Target
	closed   bool
	pingErr  error
	patterns []scripted
	executed []string

	dialErr   error
	dialed    []string
	dialConns []net.Conn
	started   []string

	// concurrency bookkeeping for worker-pool assertions
	inFlight    int
	maxInFlight int
}

type scripted struct {
	pattern *regexp.Regexp
	exact   string
	resp    CommandResponse
}

// NewMockTransport creates a mock connected to the given host.
func NewMockTransport(host, user string) *MockTransport {
	return &MockTransport{
		target: transport.Target{Host: host, Port: 22, User: user},
	}
}

// Script registers a canned response for an exact command string.
func (m *MockTransport) Script(cmd string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, scripted{exact: cmd, resp: resp})
}

// ScriptPattern registers a canned response for a command regexp.
func (m *MockTransport) ScriptPattern(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, scripted{pattern: regexp.MustCompile(pattern), resp: resp})
}

// Executed returns every command run so far, in order.
func (m *MockTransport) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.executed))
	copy(out, m.executed)
	return out
}

// MaxInFlight reports the highest number of concurrently executing commands
// observed, for bounded-concurrency assertions.
func (m *MockTransport) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// SetPingError makes Ping fail, simulating a lost connection.
func (m *MockTransport) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// SetDialError makes OpenDirect fail.
func (m *MockTransport) SetDialError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialErr = err
}

// Dialed returns the addresses passed to OpenDirect.
func (m *MockTransport) Dialed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.dialed))
	copy(out, m.dialed)
	return out
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Execute implements transport.Runner.
func (m *MockTransport) Execute(ctx context.Context, cmd string) (transport.CommandResult, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return transport.CommandResult{}, errors.New(errors.ErrChannel, "Connection is closed", "")
	}
	m.executed = append(m.executed, cmd)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	resp, ok := m.lookup(cmd)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return transport.CommandResult{}, errors.WrapWithCode(ctx.Err(), errors.ErrTimeout,
				"Command timed out: "+cmd, "")
		}
	}

	if !ok {
		// Unscripted commands behave like an unknown Windows command.
		return transport.CommandResult{
			Stderr:   "'" + cmd + "' is not recognized as an internal or external command,\noperable program or batch file.\r\n",
			ExitCode: 9009,
		}, nil
	}
	if resp.Err != nil {
		return transport.CommandResult{}, resp.Err
	}
	return transport.CommandResult{
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		ExitCode: resp.ExitCode,
	}, nil
}

func (m *MockTransport) lookup(cmd string) (CommandResponse, bool) {
	for _, s := range m.patterns {
		if s.exact != "" && s.exact == cmd {
			return s.resp, true
		}
		if s.pattern != nil && s.pattern.MatchString(cmd) {
			return s.resp, true
		}
	}
	return CommandResponse{}, false
}

// OpenDirect implements transport.Dialer using an in-memory pipe. The far
// end is discarded; tests assert on the dialed addresses.
func (m *MockTransport) OpenDirect(addr string) (net.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New(errors.ErrChannel, "Connection is closed", "")
	}
	if m.dialErr != nil {
		return nil, m.dialErr
	}
	m.dialed = append(m.dialed, addr)
	local, remote := net.Pipe()
	go func() {
		_, _ = io.Copy(io.Discard, remote)
	}()
	m.dialConns = append(m.dialConns, remote)
	return local, nil
}

// OpenInteractive implements transport.Opener.
func (m *MockTransport) OpenInteractive(termType string, width, height int) (transport.InteractiveChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New(errors.ErrChannel, "Connection is closed", "")
	}
	return &mockChannel{parent: m}, nil
}

// StartedCommands returns the commands started on interactive channels.
func (m *MockTransport) StartedCommands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.started))
	copy(out, m.started)
	return out
}

func (m *MockTransport) recordStart(cmd string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, cmd)
}

// Ping implements transport.Conn.
func (m *MockTransport) Ping() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New(errors.ErrChannel, "Connection is closed", "")
	}
	return m.pingErr
}

// Target implements transport.Conn.
func (m *MockTransport) Target() transport.Target {
	return m.target
}

// Close implements transport.Conn.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, conn := range m.dialConns {
		conn.Close()
	}
	return nil
}

// mockChannel is an interactive channel that exits immediately.
type mockChannel struct {
	parent *MockTransport
	mu     sync.Mutex
	closed bool
}

func (ch *mockChannel) Start(cmd string, stdin io.Reader, stdout, stderr io.Writer) error {
	if ch.parent != nil {
		ch.parent.recordStart(cmd)
	}
	return nil
}

func (ch *mockChannel) Resize(width, height int) error { return nil }

func (ch *mockChannel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.closed = true
	return nil
}
