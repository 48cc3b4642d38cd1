// Package cli wires the cobra command surface: resolving the target host,
// establishing the session, and handing the connection to the discovery,
// tunnel, and spawn layers.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reconlab/recon/internal/config"
	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/inventory"
	"github.com/reconlab/recon/internal/logger"
	"github.com/reconlab/recon/internal/session"
	"github.com/reconlab/recon/internal/ui"
	"github.com/reconlab/recon/pkg/transport"
)

// Global flags shared by every command.
var (
	configFlag      string
	hostFlag        string
	userFlag        string
	keyFlag         string
	passwordEnvFlag string
)

var rootCmd = &cobra.Command{
	Use:   "recon",
	Short: "Discover and reach gear behind a remote access host",
	Long: `recon connects to a remote access host over SSH and maps what hangs off
it: serial consoles, bench networks, and the nodes living on them.
Discovered inventory is cached per host, so it's there before you
reconnect.

From there, open a tunnel to a node's web interface, drop into a shell
on the host, or attach to a serial console.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints any structured error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "remote access host")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "SSH username")
	rootCmd.PersistentFlags().StringVar(&keyFlag, "key", "", "SSH private key path")
	rootCmd.PersistentFlags().StringVar(&passwordEnvFlag, "password-env", "", "environment variable holding the SSH password")
}

// loadConfig resolves and loads configuration, falling back to defaults.
func loadConfig() (*config.Config, error) {
	return config.LoadOrDefault(configFlag)
}

// openStore creates the inventory store from config.
func openStore(cfg *config.Config, log logger.Logger) *inventory.Store {
	return inventory.NewStore(cfg.CacheDir(), log)
}

// resolveIdentity determines the target from flags, falling back to an
// interactive form prefilled with the most recently active cached host.
// Returns the identity and the credentials to dial with.
func resolveIdentity(store *inventory.Store) (inventory.HostIdentity, transport.Credentials, error) {
	creds := transport.Credentials{KeyPath: keyFlag}
	if passwordEnvFlag != "" {
		pw := os.Getenv(passwordEnvFlag)
		if pw == "" {
			return inventory.HostIdentity{}, creds, errors.New(errors.ErrConfig,
				"Environment variable "+passwordEnvFlag+" is empty",
				"Export the password first, or drop --password-env to be prompted")
		}
		creds.Password = pw
	}

	if hostFlag != "" && userFlag != "" {
		return inventory.HostIdentity{Host: hostFlag, User: userFlag}, creds, nil
	}

	defaults := ui.ConnectValues{Host: hostFlag, User: userFlag}
	if last := store.LastActive(); last != nil {
		if defaults.Host == "" {
			defaults.Host = last.Identity.Host
		}
		if defaults.User == "" {
			defaults.User = last.Identity.User
		}
	}

	values, err := ui.ConnectForm(defaults)
	if err != nil {
		return inventory.HostIdentity{}, creds, err
	}
	if values.Password != "" {
		creds.Password = values.Password
	}
	return inventory.HostIdentity{Host: values.Host, User: values.User}, creds, nil
}

// connectSession dials the target and returns a connected manager, the
// loaded config, and the session teardown.
func connectSession() (*session.Manager, *config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	log := logger.Default()
	store := openStore(cfg, log)

	id, creds, err := resolveIdentity(store)
	if err != nil {
		return nil, nil, nil, err
	}

	if creds.Password == "" && creds.KeyPath == "" {
		// No explicit credentials; the transport will try default keys via
		// the password-less path only if a key file is given, so fall back
		// to the preferred local key.
		creds.KeyPath = defaultKeyPath()
	}

	mgr := session.NewManager(store, session.Options{
		ConnectTimeout: cfg.Connect.Timeout,
		Keepalive:      cfg.Connect.Keepalive,
		Logger:         log,
	})

	spin := ui.NewSpinner("Connecting to " + id.Key())
	spin.Start()
	if err := mgr.Connect(id, creds); err != nil {
		spin.Fail()
		return nil, nil, nil, err
	}
	spin.Success()

	teardown := func() {
		if err := mgr.Disconnect(); err != nil {
			log.Debug("disconnect: %v", err)
		}
	}
	return mgr, cfg, teardown, nil
}
