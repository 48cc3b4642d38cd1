package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/reconlab/recon/internal/config"
	"github.com/reconlab/recon/internal/discovery"
	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/inventory"
	"github.com/reconlab/recon/internal/logger"
	"github.com/reconlab/recon/internal/ui"
)

// consolesCommand enumerates serial consoles on the access host.
func consolesCommand(refresh bool) error {
	mgr, cfg, teardown, err := connectSession()
	if err != nil {
		return err
	}
	defer teardown()

	conn, err := mgr.Conn()
	if err != nil {
		return err
	}

	svc := discovery.NewConsoles(conn, mgr.Store(), mgr.Identity())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Command.Timeout)
	defer cancel()

	spin := ui.NewSpinner("Enumerating serial consoles")
	spin.Start()

	var devices []inventory.ConsoleDevice
	if refresh {
		devices, err = svc.Refresh(ctx)
	} else {
		devices, err = svc.List(ctx)
	}
	if err != nil {
		spin.Fail()
		return err
	}
	spin.Success()

	if len(devices) == 0 {
		fmt.Println("No serial consoles found.")
		return nil
	}

	muted := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	for _, d := range devices {
		fmt.Printf("  %s  %s\n", d.Path, muted.Render(d.Name))
	}
	return nil
}

// networksCommand enumerates networks attached to the access host.
func networksCommand(refresh bool) error {
	mgr, cfg, teardown, err := connectSession()
	if err != nil {
		return err
	}
	defer teardown()

	conn, err := mgr.Conn()
	if err != nil {
		return err
	}

	svc := discovery.NewNetworks(conn, mgr.Store(), mgr.Identity())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Command.Timeout)
	defer cancel()

	spin := ui.NewSpinner("Enumerating networks")
	spin.Start()

	var nets []inventory.NetworkInterface
	if refresh {
		nets, err = svc.Refresh(ctx)
	} else {
		nets, err = svc.List(ctx)
	}
	if err != nil {
		spin.Fail()
		return err
	}
	spin.Success()

	if len(nets) == 0 {
		fmt.Println("No private networks found.")
		return nil
	}

	muted := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	record := mgr.Store().Record(mgr.Identity())
	for _, n := range nets {
		nodes := len(record.NodeList(n.CIDR))
		suffix := ""
		if nodes > 0 {
			suffix = fmt.Sprintf("  %d known nodes", nodes)
		}
		fmt.Printf("  %s  %s%s\n", n.CIDR, muted.Render(n.Name), muted.Render(suffix))
	}
	return nil
}

// scanCommand sweeps one network for live nodes.
func scanCommand(networkFlag string, yes bool, workers int) error {
	mgr, cfg, teardown, err := connectSession()
	if err != nil {
		return err
	}
	defer teardown()

	conn, err := mgr.Conn()
	if err != nil {
		return err
	}

	network, err := pickNetwork(mgr.Store().Record(mgr.Identity()), networkFlag)
	if err != nil {
		return err
	}

	if !yes {
		ok, err := ui.Confirm(fmt.Sprintf("Sweep %s (%s)?", network.CIDR, network.Name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if workers <= 0 {
		workers = cfg.Scan.Workers
	}
	if workers > config.MaxScanWorkers {
		workers = config.MaxScanWorkers
	}

	scanner := discovery.NewScanner(conn, mgr.Store(), mgr.Identity(), discovery.ScannerOptions{
		Workers:     workers,
		ProbeWaitMS: cfg.Scan.ProbeWaitMS,
		Logger:      logger.Default(),
	})

	sweep, err := scanner.Start(context.Background(), network)
	if err != nil {
		return err
	}

	summary, err := ui.RunSweepView(sweep, network.CIDR)
	if err != nil {
		return err
	}
	if summary.Err != nil {
		return summary.Err
	}

	if summary.Canceled {
		fmt.Printf("Stopped early: %d of %d probed, %d live nodes kept.\n",
			summary.Probed, sweep.Total, summary.Found)
	} else {
		fmt.Printf("Done: %d probed, %d live nodes.\n", summary.Probed, summary.Found)
	}
	return nil
}

// pickNetwork resolves the --network flag against the cached inventory. A
// bare CIDR is accepted as-is; a name must match a cached network; empty
// falls back to the first cached network.
func pickNetwork(record *inventory.HostRecord, flag string) (inventory.NetworkInterface, error) {
	if strings.Contains(flag, "/") {
		return inventory.NetworkInterface{Name: flag, CIDR: flag}, nil
	}

	nets := record.NetworkList()
	if flag != "" {
		for _, n := range nets {
			if strings.EqualFold(n.Name, flag) {
				return n, nil
			}
		}
		return inventory.NetworkInterface{}, errors.New(errors.ErrDiscovery,
			"No cached network named '"+flag+"'",
			"Run 'recon networks' first, or pass a CIDR like 192.168.7.0/24")
	}

	if len(nets) == 0 {
		return inventory.NetworkInterface{}, errors.New(errors.ErrDiscovery,
			"No networks in the cache for this host",
			"Run 'recon networks' first, or pass --network 192.168.7.0/24")
	}
	return nets[0], nil
}
