// Package setup provisions passwordless authentication: local key discovery
// and generation, plus pushing the public key into the remote
// authorized_keys file over sftp.
package setup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/reconlab/recon/internal/errors"
)

// KeyInfo describes one local SSH key pair.
type KeyInfo struct {
	Path       string // private key path
	Type       string // ed25519, rsa, ecdsa
	PublicPath string
	HasPublic  bool
}

// DefaultKeyPaths returns the standard locations for SSH keys.
func DefaultKeyPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
	}
}

// FindLocalKeys searches the standard locations for existing keys.
func FindLocalKeys() []KeyInfo {
	var keys []KeyInfo

	for _, path := range DefaultKeyPaths() {
		if _, err := os.Stat(path); err == nil {
			pubPath := path + ".pub"
			_, pubErr := os.Stat(pubPath)

			keys = append(keys, KeyInfo{
				Path:       path,
				Type:       inferKeyType(path),
				PublicPath: pubPath,
				HasPublic:  pubErr == nil,
			})
		}
	}

	return keys
}

// PreferredKey returns the best available key (ed25519 > ecdsa > rsa), or nil
// when the machine has none.
func PreferredKey() *KeyInfo {
	keys := FindLocalKeys()
	if len(keys) == 0 {
		return nil
	}

	for _, keyType := range []string{"ed25519", "ecdsa", "rsa"} {
		for _, key := range keys {
			if key.Type == keyType && key.HasPublic {
				return &key
			}
		}
	}

	// Fall back to any key, even without a public half on disk.
	return &keys[0]
}

// GenerateKey creates a new key pair at path using ssh-keygen.
func GenerateKey(path string, keyType string) error {
	if keyType == "" {
		keyType = "ed25519"
	}

	validTypes := map[string]bool{
		"ed25519": true,
		"rsa":     true,
		"ecdsa":   true,
	}
	if !validTypes[keyType] {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Invalid key type: %s", keyType),
			"Supported types: ed25519 (recommended), rsa, ecdsa")
	}

	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to determine home directory",
				"Set HOME environment variable")
		}
		path = filepath.Join(home, path[1:])
	}

	sshDir := filepath.Dir(path)
	if err := os.MkdirAll(sshDir, 0700); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to create SSH directory: %s", sshDir),
			"Check permissions on home directory")
	}

	if _, err := os.Stat(path); err == nil {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Key already exists at %s", path),
			"Choose a different path or delete the existing key")
	}

	args := []string{
		"-t", keyType,
		"-f", path,
		"-N", "", // empty passphrase, the user can add one later
		"-C", fmt.Sprintf("recon-generated-%s", keyType),
	}
	if keyType == "rsa" {
		args = append(args, "-b", "4096")
	}

	cmd := exec.Command("ssh-keygen", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to generate SSH key: %s", strings.TrimSpace(string(output))),
			"Ensure ssh-keygen is installed and accessible")
	}

	if _, err := os.Stat(path); err != nil {
		return errors.New(errors.ErrConfig,
			"Key generation completed but key file not found",
			"Check disk space and permissions")
	}

	return nil
}

// DefaultKeyPath returns the default path for new SSH keys.
func DefaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.ssh/id_ed25519"
	}
	return filepath.Join(home, ".ssh", "id_ed25519")
}

func inferKeyType(path string) string {
	base := filepath.Base(path)
	switch {
	case strings.Contains(base, "ed25519"):
		return "ed25519"
	case strings.Contains(base, "ecdsa"):
		return "ecdsa"
	case strings.Contains(base, "rsa"):
		return "rsa"
	default:
		return "unknown"
	}
}

// ReadPublicKey reads a public key file, trimmed for authorized_keys use.
func ReadPublicKey(pubPath string) (string, error) {
	data, err := os.ReadFile(pubPath)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to read public key: %s", pubPath),
			"Check that the file exists and is readable")
	}
	return strings.TrimSpace(string(data)), nil
}
