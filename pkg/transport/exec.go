package transport

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/reconlab/recon/internal/errors"
)

// Execute runs a command on the remote host and waits for completion.
// The session channel is opened under the channel mutex; the wait itself
// runs unlocked so long commands don't starve other channel users.
func (c *Client) Execute(ctx context.Context, cmd string) (CommandResult, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCommandTimeout)
		defer cancel()
	}

	session, err := c.newSession()
	if err != nil {
		return CommandResult{}, err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		// Closing the session tears down the remote command.
		session.Close()
		<-done
		if ctx.Err() == context.DeadlineExceeded {
			return CommandResult{}, errors.WrapWithCode(ctx.Err(), errors.ErrTimeout,
				fmt.Sprintf("Command timed out: %s", cmd),
				"The remote host may be busy; retry or raise command.timeout")
		}
		return CommandResult{}, errors.WrapWithCode(ctx.Err(), errors.ErrChannel,
			fmt.Sprintf("Command canceled: %s", cmd), "")
	case err = <-done:
	}

	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *ssh.ExitError
		if ok := asExitError(err, &exitErr); ok {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return CommandResult{}, errors.WrapWithCode(err, errors.ErrChannel,
			fmt.Sprintf("Failed to execute command: %s", cmd),
			"Connection may have been lost. Reconnect and retry.")
	}
	return result, nil
}

// newSession opens a session channel under the channel mutex.
func (c *Client) newSession() (*ssh.Session, error) {
	client, err := c.conn()
	if err != nil {
		return nil, err
	}

	c.chanMu.Lock()
	defer c.chanMu.Unlock()

	session, err := client.NewSession()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrChannel,
			"Failed to open a session channel",
			"The connection may have been lost or the server hit its channel limit")
	}
	return session, nil
}

func asExitError(err error, target **ssh.ExitError) bool {
	e, ok := err.(*ssh.ExitError)
	if ok {
		*target = e
	}
	return ok
}
