// Package spawn runs interactive remote processes over the transport: a
// powershell on the host itself, or a serial console attached through plink.
// The local terminal goes raw for the duration and is always restored.
package spawn

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/inventory"
	"github.com/reconlab/recon/internal/logger"
	"github.com/reconlab/recon/pkg/transport"
)

// shellCommand is the interactive shell started on the remote host.
const shellCommand = "powershell"

// Registrar ties a spawned channel to the session lifetime, so a dropped
// session force-closes it.
type Registrar interface {
	Register(io.Closer) string
	Release(handle string)
}

// SerialParams are the serial line settings passed to plink.
type SerialParams struct {
	Baud        int
	DataBits    int
	Parity      string
	StopBits    int
	FlowControl string
}

// DefaultSerialParams matches the bench consoles: 115200 baud, 8 data bits,
// no parity, 1 stop bit, XON/XOFF flow control.
func DefaultSerialParams() SerialParams {
	return SerialParams{Baud: 115200, DataBits: 8, Parity: "n", StopBits: 1, FlowControl: "X"}
}

// command renders the plink invocation for a serial device path.
func (p SerialParams) command(devicePath string) string {
	return fmt.Sprintf("plink -serial %s -sercfg %d,%d,%s,%d,%s",
		devicePath, p.Baud, p.DataBits, p.Parity, p.StopBits, p.FlowControl)
}

// Spawner opens interactive processes on the connected host.
type Spawner struct {
	opener    transport.Opener
	runner    transport.Runner
	registrar Registrar
	log       logger.Logger

	stdin  *os.File
	stdout io.Writer
	stderr io.Writer
}

// New creates a spawner wired to the session's transport and registrar.
func New(opener transport.Opener, runner transport.Runner, registrar Registrar, log logger.Logger) *Spawner {
	if log == nil {
		log = logger.Noop()
	}
	return &Spawner{
		opener:    opener,
		runner:    runner,
		registrar: registrar,
		log:       log,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
}

// Shell runs an interactive powershell on the remote host, blocking until it
// exits or the session tears the channel down.
func (s *Spawner) Shell() error {
	return s.run(shellCommand)
}

// Console attaches to a serial console through plink on the remote host.
// A host without plink is a capability error, reported before any channel
// opens.
func (s *Spawner) Console(ctx context.Context, device inventory.ConsoleDevice, params SerialParams) error {
	if err := s.ensurePlink(ctx); err != nil {
		return err
	}
	return s.run(params.command(device.Path))
}

// ensurePlink checks that plink resolves on the remote PATH.
func (s *Spawner) ensurePlink(ctx context.Context) error {
	result, err := s.runner.Execute(ctx, "where plink")
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return errors.New(errors.ErrCapability,
			"'plink' is not available on the remote host",
			"Install PuTTY on the remote host or add plink.exe to its PATH")
	}
	return nil
}

// run opens an interactive channel for cmd and pumps the local terminal
// through it. Without a terminal (piped stdin) the streams connect as-is.
func (s *Spawner) run(cmd string) error {
	fd := int(s.stdin.Fd())
	width, height := 80, 24
	isTerm := term.IsTerminal(fd)
	if isTerm {
		if w, h, err := term.GetSize(fd); err == nil {
			width, height = w, h
		}
	}

	ch, err := s.opener.OpenInteractive(os.Getenv("TERM"), width, height)
	if err != nil {
		return err
	}
	defer ch.Close()

	handle := s.registrar.Register(ch)
	defer s.registrar.Release(handle)

	if isTerm {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrChannel,
				"Can't switch the terminal to raw mode", "")
		}
		defer term.Restore(fd, oldState)

		stopResize := s.watchResize(fd, ch)
		defer stopResize()
	}

	s.log.Debug("interactive channel started: %s", cmd)
	return ch.Start(cmd, s.stdin, s.stdout, s.stderr)
}

// watchResize propagates local terminal size changes to the remote pty.
func (s *Spawner) watchResize(fd int, ch transport.InteractiveChannel) func() {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-winch:
				if w, h, err := term.GetSize(fd); err == nil {
					if err := ch.Resize(w, h); err != nil {
						s.log.Debug("resize failed: %v", err)
					}
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(winch)
		close(done)
	}
}
