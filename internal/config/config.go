// Package config loads recon configuration from YAML files with sensible
// defaults. Config is optional: every knob has a default that works against
// a stock Windows OpenSSH host.
package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// ConfigFileName is the default config file name in the working directory.
	ConfigFileName = ".recon.yaml"
	// GlobalConfigDir is the directory for global config and cached host data.
	GlobalConfigDir = ".config/recon"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
)

// Config holds all recon settings.
type Config struct {
	Connect ConnectConfig `mapstructure:"connect"`
	Command CommandConfig `mapstructure:"command"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Tunnel  TunnelConfig  `mapstructure:"tunnel"`
	Cache   CacheConfig   `mapstructure:"cache"`
}

// ConnectConfig controls session establishment.
type ConnectConfig struct {
	// Timeout bounds the TCP dial plus SSH handshake.
	Timeout time.Duration `mapstructure:"timeout"`
	// Keepalive is the interval between liveness probes on an open session.
	// Zero disables the keepalive watcher.
	Keepalive time.Duration `mapstructure:"keepalive"`
}

// CommandConfig controls remote command execution.
type CommandConfig struct {
	// Timeout bounds a single remote command round trip.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ScanConfig controls the subnet node scanner.
type ScanConfig struct {
	// Workers is the probe worker pool size. Probes run on the remote host,
	// so this stays small; capped at MaxScanWorkers.
	Workers int `mapstructure:"workers"`
	// ProbeWait is the per-address ping reply wait, in milliseconds, passed
	// to the remote ping command.
	ProbeWaitMS int `mapstructure:"probe_wait_ms"`
}

// TunnelConfig controls port forwarding.
type TunnelConfig struct {
	// RemotePort is the node port every tunnel targets.
	RemotePort int `mapstructure:"remote_port"`
	// OpenTimeout bounds the first forwarded-channel open.
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// CacheConfig controls the persistent host inventory store.
type CacheConfig struct {
	// Dir overrides the directory holding hosts.yaml. Empty means
	// ~/.config/recon.
	Dir string `mapstructure:"dir"`
}

// MaxScanWorkers bounds scan.workers regardless of configuration. The probes
// are issued through one multiplexed SSH connection, so larger pools only add
// queueing on the remote side.
const MaxScanWorkers = 16

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Connect: ConnectConfig{
			Timeout:   5 * time.Second,
			Keepalive: 30 * time.Second,
		},
		Command: CommandConfig{
			Timeout: 30 * time.Second,
		},
		Scan: ScanConfig{
			Workers:     4,
			ProbeWaitMS: 25,
		},
		Tunnel: TunnelConfig{
			RemotePort:  443,
			OpenTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{},
	}
}

// CacheDir resolves the directory for persisted host data.
func (c *Config) CacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return GlobalConfigDir
	}
	return filepath.Join(home, GlobalConfigDir)
}
