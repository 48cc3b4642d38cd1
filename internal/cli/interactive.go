package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/reconlab/recon/internal/discovery"
	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/inventory"
	"github.com/reconlab/recon/internal/logger"
	"github.com/reconlab/recon/internal/session"
	"github.com/reconlab/recon/internal/spawn"
	"github.com/reconlab/recon/pkg/transport"
)

// shellCommand drops into an interactive shell on the access host.
func shellCommand() error {
	mgr, _, teardown, err := connectSession()
	if err != nil {
		return err
	}
	defer teardown()

	conn, err := mgr.Conn()
	if err != nil {
		return err
	}

	spawner := spawn.New(conn, conn, mgr, logger.Default())
	return spawner.Shell()
}

// consoleCommand attaches to a serial console, prompting for the device when
// none was given.
func consoleCommand(devicePath string) error {
	mgr, cfg, teardown, err := connectSession()
	if err != nil {
		return err
	}
	defer teardown()

	conn, err := mgr.Conn()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Command.Timeout)
	defer cancel()

	device, err := resolveConsole(ctx, mgr, conn, devicePath)
	if err != nil {
		return err
	}

	fmt.Printf("Attaching to %s (%s). Exit plink to detach.\n", device.Path, device.Name)
	spawner := spawn.New(conn, conn, mgr, logger.Default())
	return spawner.Console(ctx, device, spawn.DefaultSerialParams())
}

// resolveConsole maps a device path to a cached console, enumerating live
// when the cache has nothing. An empty path prompts for a pick.
func resolveConsole(ctx context.Context, mgr *session.Manager, runner transport.Runner, devicePath string) (inventory.ConsoleDevice, error) {
	record := mgr.Store().Record(mgr.Identity())
	devices := record.ConsoleList()

	if len(devices) == 0 {
		svc := discovery.NewConsoles(runner, mgr.Store(), mgr.Identity())
		var err error
		devices, err = svc.List(ctx)
		if err != nil {
			return inventory.ConsoleDevice{}, err
		}
	}

	if devicePath != "" {
		for _, d := range devices {
			if d.Path == devicePath {
				return d, nil
			}
		}
		// Unknown to the cache; trust the caller's path.
		return inventory.ConsoleDevice{Name: devicePath, Path: devicePath}, nil
	}

	if len(devices) == 0 {
		return inventory.ConsoleDevice{}, errors.New(errors.ErrDiscovery,
			"No serial consoles on this host",
			"Plug one in and run 'recon consoles --refresh'")
	}
	if len(devices) == 1 {
		return devices[0], nil
	}

	options := make([]huh.Option[int], len(devices))
	for i, d := range devices {
		options[i] = huh.NewOption(fmt.Sprintf("%s  %s", d.Path, d.Name), i)
	}

	var pick int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Serial console").
				Options(options...).
				Value(&pick),
		),
	)
	if err := form.Run(); err != nil {
		return inventory.ConsoleDevice{}, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't read console selection",
			"Pass the device directly: recon console COM3")
	}
	return devices[pick], nil
}
