package transport

import (
	"io"
	"net"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/reconlab/recon/internal/errors"
)

// OpenDirect opens a direct-tcpip channel to addr as seen from the remote
// host. The returned conn is one forwarded TCP stream; closing it closes
// only that channel.
func (c *Client) OpenDirect(addr string) (net.Conn, error) {
	client, err := c.conn()
	if err != nil {
		return nil, err
	}

	c.chanMu.Lock()
	defer c.chanMu.Unlock()

	conn, err := client.Dial("tcp", addr)
	if err != nil {
		if strings.Contains(err.Error(), "administratively prohibited") {
			return nil, errors.WrapWithCode(err, errors.ErrCapability,
				"The SSH server refuses port forwarding",
				"Enable AllowTcpForwarding in the remote sshd_config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrChannel,
			"Failed to open a forwarded channel to "+addr,
			"The node may be unreachable from the remote host")
	}
	return conn, nil
}

// OpenInteractive allocates a PTY-backed session channel.
func (c *Client) OpenInteractive(termType string, width, height int) (InteractiveChannel, error) {
	session, err := c.newSession()
	if err != nil {
		return nil, err
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if termType == "" {
		termType = "xterm-256color"
	}
	if err := session.RequestPty(termType, height, width, modes); err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrChannel,
			"Failed to allocate a PTY",
			"The remote host may not support pseudo-terminals")
	}

	return &interactiveChannel{session: session}, nil
}

// interactiveChannel wraps one PTY session.
type interactiveChannel struct {
	session *ssh.Session
}

func (ch *interactiveChannel) Start(cmd string, stdin io.Reader, stdout, stderr io.Writer) error {
	ch.session.Stdin = stdin
	ch.session.Stdout = stdout
	ch.session.Stderr = stderr

	var err error
	if cmd == "" {
		err = ch.session.Shell()
	} else {
		err = ch.session.Start(cmd)
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrChannel,
			"Failed to start the remote session",
			"Check your user has shell access on the remote host")
	}

	err = ch.session.Wait()
	if err == nil {
		return nil
	}
	// Remote exit statuses are normal terminations of an interactive
	// session, not transport failures.
	if _, ok := err.(*ssh.ExitError); ok {
		return nil
	}
	if _, ok := err.(*ssh.ExitMissingError); ok {
		return nil
	}
	return errors.WrapWithCode(err, errors.ErrChannel,
		"Remote session ended abnormally", "")
}

func (ch *interactiveChannel) Resize(width, height int) error {
	return ch.session.WindowChange(height, width)
}

func (ch *interactiveChannel) Close() error {
	return ch.session.Close()
}
