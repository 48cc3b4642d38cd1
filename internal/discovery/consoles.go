// Package discovery turns remote command output into structured inventories:
// serial consoles, network interfaces, and live nodes. Results merge into the
// persistent store; refresh variants replace the cached bucket instead.
//
// The remote host is a Windows box reached over OpenSSH, so the command
// strings and parse rules here are pinned to Windows tool output. Deviating
// output is a DISCOVERY error, never a crash.
package discovery

import (
	"context"
	"regexp"
	"strings"

	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/inventory"
	"github.com/reconlab/recon/pkg/transport"
)

// consoleCommand enumerates serial ports. CSV format keeps the parse stable
// across column-width changes.
const consoleCommand = `wmic path Win32_SerialPort get Caption,DeviceID /format:csv`

var comPortRe = regexp.MustCompile(`COM\d+`)

// Consoles discovers serial console devices on the remote host.
type Consoles struct {
	runner transport.Runner
	store  *inventory.Store
	id     inventory.HostIdentity
}

// NewConsoles creates a console discovery service for one host.
func NewConsoles(runner transport.Runner, store *inventory.Store, id inventory.HostIdentity) *Consoles {
	return &Consoles{runner: runner, store: store, id: id}
}

// List enumerates consoles and unions them with the cached set.
func (c *Consoles) List(ctx context.Context) ([]inventory.ConsoleDevice, error) {
	devices, err := c.enumerate(ctx)
	if err != nil {
		return nil, err
	}
	return c.store.MergeConsoles(c.id, devices)
}

// Refresh enumerates consoles and replaces the cached set with the result.
func (c *Consoles) Refresh(ctx context.Context) ([]inventory.ConsoleDevice, error) {
	devices, err := c.enumerate(ctx)
	if err != nil {
		return nil, err
	}
	return c.store.ReplaceConsoles(c.id, devices)
}

func (c *Consoles) enumerate(ctx context.Context) ([]inventory.ConsoleDevice, error) {
	result, err := c.runner.Execute(ctx, consoleCommand)
	if err != nil {
		return nil, err
	}
	if err := checkCapability("wmic", result); err != nil {
		return nil, err
	}
	return parseConsoleOutput(result.Stdout)
}

// parseConsoleOutput parses wmic CSV output:
//
//	Node,Caption,DeviceID
//	BENCH-PC,USB Serial Port (COM3),COM3
//
// The device ID is the last field so captions containing commas survive.
func parseConsoleOutput(out string) ([]inventory.ConsoleDevice, error) {
	var devices []inventory.ConsoleDevice
	sawHeader := false

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		if !sawHeader {
			if !strings.Contains(line, "Caption") || !strings.Contains(line, "DeviceID") {
				return nil, errors.New(errors.ErrDiscovery,
					"Unexpected serial port listing format",
					"The remote wmic output changed; re-run with RECON_DEBUG=1 and report the output")
			}
			sawHeader = true
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			return nil, errors.New(errors.ErrDiscovery,
				"Malformed serial port entry: "+line, "")
		}
		path := strings.TrimSpace(fields[len(fields)-1])
		caption := strings.TrimSpace(strings.Join(fields[1:len(fields)-1], ","))
		if !comPortRe.MatchString(path) {
			// Some drivers report the port only in the caption.
			if m := comPortRe.FindString(caption); m != "" {
				path = m
			} else {
				continue
			}
		}
		devices = append(devices, inventory.ConsoleDevice{Name: caption, Path: path})
	}

	if !sawHeader {
		return nil, errors.New(errors.ErrDiscovery,
			"Empty serial port listing",
			"The remote wmic output changed; re-run with RECON_DEBUG=1 and report the output")
	}
	return devices, nil
}

// checkCapability detects a missing remote-side tool. cmd.exe reports exit
// code 9009 and a "not recognized" message for unknown commands.
func checkCapability(tool string, result transport.CommandResult) error {
	if result.ExitCode == 9009 || strings.Contains(result.Stderr, "is not recognized") {
		return errors.New(errors.ErrCapability,
			"'"+tool+"' is not available on the remote host",
			"Install "+tool+" or add it to the remote PATH")
	}
	return nil
}
