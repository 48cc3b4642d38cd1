// Package transport owns the single multiplexed SSH connection to a remote
// host. It executes remote commands synchronously, opens logical channels for
// interactive sessions and port forwards, and serializes channel creation:
// session-channel negotiation on one SSH transport is not safe to run from
// concurrent callers.
package transport

import (
	"context"
	"io"
	"net"
	"time"
)

// Target identifies the remote endpoint of a connection attempt.
type Target struct {
	// Host is a hostname, IP, or ~/.ssh/config alias.
	Host string
	// Port is the SSH port; 0 means 22 or the ssh_config value.
	Port int
	// User is the login name; empty means the ssh_config or local user.
	User string
}

// Credentials carries the authentication material for a connection attempt.
type Credentials struct {
	// Password enables password authentication when non-empty.
	Password string
	// KeyPath points at a private key file to try before the password.
	KeyPath string
}

// CommandResult is the outcome of one remote command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes remote commands. Discovery services depend on this
// interface so tests can script remote output.
type Runner interface {
	// Execute runs cmd on the remote host and waits for completion. The
	// context bounds the whole round trip; exceeding it returns a TIMEOUT
	// error and tears down the command's channel. A non-zero exit code is
	// reported in the result, not as an error.
	Execute(ctx context.Context, cmd string) (CommandResult, error)
}

// Dialer opens forwarded connections through the transport. The tunnel
// manager depends on this interface.
type Dialer interface {
	// OpenDirect opens a direct-tcpip channel to addr ("ip:port") as seen
	// from the remote host.
	OpenDirect(addr string) (net.Conn, error)
}

// InteractiveChannel is a remote PTY-backed session wired to local streams.
type InteractiveChannel interface {
	// Start launches cmd (or a login shell when cmd is empty) attached to
	// the given streams and blocks until the remote side exits.
	Start(cmd string, stdin io.Reader, stdout, stderr io.Writer) error
	// Resize propagates a local terminal size change.
	Resize(width, height int) error
	io.Closer
}

// Opener creates interactive channels. The process spawner depends on this.
type Opener interface {
	// OpenInteractive allocates a PTY of the given size on a fresh channel.
	OpenInteractive(termType string, width, height int) (InteractiveChannel, error)
}

// Conn is the full transport surface: command execution, forwarding,
// interactive channels, and liveness.
type Conn interface {
	Runner
	Dialer
	Opener

	// Ping checks connection liveness with a lightweight global request.
	Ping() error
	// Target returns the endpoint this transport is connected to.
	Target() Target
	// Close tears down the connection and every channel on it.
	Close() error
}

// DefaultCommandTimeout bounds Execute when the caller's context carries no
// deadline.
const DefaultCommandTimeout = 30 * time.Second
