package cli

import (
	"github.com/spf13/cobra"
)

// Command-specific flags
var (
	consolesRefreshFlag bool
	networksRefreshFlag bool
	scanNetworkFlag     string
	scanYesFlag         bool
	scanWorkersFlag     int
	tunnelPortFlag      int
	setupKeyTypeFlag    string
)

// consolesCmd lists serial consoles on the access host.
var consolesCmd = &cobra.Command{
	Use:   "consoles",
	Short: "List serial consoles on the access host",
	Long: `Enumerate the serial console devices attached to the remote access host.

Results merge into the cached inventory for the host, so previously seen
consoles stay listed even when currently unplugged. Use --refresh to drop
stale entries and keep only what the host reports right now.

Examples:
  recon consoles
  recon consoles --refresh
  recon consoles --host 10.0.0.5 --user lab`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return consolesCommand(consolesRefreshFlag)
	},
}

// networksCmd lists networks attached to the access host.
var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List networks attached to the access host",
	Long: `Enumerate the private networks the remote access host sits on.

These are the subnets worth scanning for nodes. Results merge into the
cached inventory; --refresh replaces the cached set instead.

Examples:
  recon networks
  recon networks --refresh`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return networksCommand(networksRefreshFlag)
	},
}

// scanCmd sweeps a network for live nodes.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Sweep a network for live nodes",
	Long: `Probe every address on one of the access host's networks and record the
nodes that answer.

Hits are committed to the inventory as they land, so stopping a sweep
early keeps everything found so far. Without --network, the first cached
network is used after confirmation.

Examples:
  recon scan --network 192.168.7.0/24
  recon scan --network "Bench Network"
  recon scan --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return scanCommand(scanNetworkFlag, scanYesFlag, scanWorkersFlag)
	},
}

// tunnelCmd forwards a local port to a node.
var tunnelCmd = &cobra.Command{
	Use:   "tunnel <node-ip>",
	Short: "Forward a local port to a node's web interface",
	Long: `Open a local listening port that forwards to a node through the access
host. Point your browser at the printed address; the tunnel stays up
until interrupted.

Only one tunnel runs at a time.

Examples:
  recon tunnel 192.168.7.3
  recon tunnel 192.168.7.3 --port 8443`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tunnelCommand(args[0], tunnelPortFlag)
	},
}

// shellCmd opens an interactive shell on the access host.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open an interactive shell on the access host",
	Long: `Start an interactive powershell on the remote access host, wired to the
local terminal. Window resizes propagate; exit the shell to return.

Examples:
  recon shell`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return shellCommand()
	},
}

// consoleCmd attaches to a serial console.
var consoleCmd = &cobra.Command{
	Use:   "console [device]",
	Short: "Attach to a serial console on the access host",
	Long: `Attach the local terminal to a serial console device on the remote
access host (115200 8n1, XON/XOFF). Without an argument, the cached
console list is shown to pick from.

Examples:
  recon console COM3
  recon console`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		device := ""
		if len(args) > 0 {
			device = args[0]
		}
		return consoleCommand(device)
	},
}

// hostsCmd lists cached hosts and their inventories.
var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List cached hosts and their inventories",
	Long: `Show every access host in the local cache with its discovered consoles,
networks, and node counts, most recently used first. Purely local; no
connection is made.

Examples:
  recon hosts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return hostsCommand()
	},
}

// setupCmd deploys an SSH key for passwordless access.
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Deploy an SSH key to the access host",
	Long: `Set up passwordless authentication: pick or generate a local SSH key and
append its public half to the access host's authorized_keys.

You'll be asked for the password once; afterwards recon connects with
the key.

Examples:
  recon setup
  recon setup --key-type rsa`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setupCommand(setupKeyTypeFlag)
	},
}

func init() {
	consolesCmd.Flags().BoolVar(&consolesRefreshFlag, "refresh", false, "replace cached consoles with the live listing")
	networksCmd.Flags().BoolVar(&networksRefreshFlag, "refresh", false, "replace cached networks with the live listing")

	scanCmd.Flags().StringVar(&scanNetworkFlag, "network", "", "network to sweep (CIDR or cached name)")
	scanCmd.Flags().BoolVarP(&scanYesFlag, "yes", "y", false, "skip the confirmation prompt")
	scanCmd.Flags().IntVar(&scanWorkersFlag, "workers", 0, "concurrent probes (default from config)")

	tunnelCmd.Flags().IntVar(&tunnelPortFlag, "port", 0, "remote port to forward to (default 443)")

	setupCmd.Flags().StringVar(&setupKeyTypeFlag, "key-type", "ed25519", "key type to generate if none exists")

	rootCmd.AddCommand(consolesCmd)
	rootCmd.AddCommand(networksCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(tunnelCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(setupCmd)
}
