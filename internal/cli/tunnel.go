package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/reconlab/recon/internal/logger"
	"github.com/reconlab/recon/internal/session"
	"github.com/reconlab/recon/internal/tunnel"
	"github.com/reconlab/recon/internal/ui"
)

// tunnelCommand opens a forward to a node and holds it until interrupted.
func tunnelCommand(nodeIP string, port int) error {
	mgr, cfg, teardown, err := connectSession()
	if err != nil {
		return err
	}
	defer teardown()

	conn, err := mgr.Conn()
	if err != nil {
		return err
	}

	if port <= 0 {
		port = cfg.Tunnel.RemotePort
	}

	tm := tunnel.NewManager(conn, logger.Default())
	tm.OpenTimeout = cfg.Tunnel.OpenTimeout

	spin := ui.NewSpinner(fmt.Sprintf("Opening tunnel to %s:%d", nodeIP, port))
	spin.Start()
	tun, err := tm.Open(nodeIP, port)
	if err != nil {
		spin.Fail()
		return err
	}
	spin.Success()

	// A dropped session takes the tunnel with it.
	handle := mgr.Register(tun)
	defer mgr.Release(handle)
	defer tun.Close()

	bold := lipgloss.NewStyle().Bold(true)
	muted := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	fmt.Printf("\n  %s\n", bold.Render("https://"+tun.LocalAddr()))
	fmt.Printf("  %s\n\n", muted.Render(fmt.Sprintf("forwarding to %s:%d", nodeIP, port)))
	fmt.Println(muted.Render("press ctrl+c to close"))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-interrupt:
			fmt.Println("\nClosing tunnel.")
			return tun.Close()
		case <-ticker.C:
			if state, reason := mgr.State(); state == session.StateFailed {
				return reason
			}
			if tun.State() == tunnel.StateFailed {
				return tun.Err()
			}
		}
	}
}
