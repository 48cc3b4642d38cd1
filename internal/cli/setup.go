package cli

import (
	"fmt"

	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/logger"
	"github.com/reconlab/recon/internal/setup"
	"github.com/reconlab/recon/internal/ui"
	"github.com/reconlab/recon/pkg/transport"
)

// setupCommand deploys a public key to the access host and verifies that key
// auth works afterwards.
func setupCommand(keyType string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := openStore(cfg, logger.Default())

	id, creds, err := resolveIdentity(store)
	if err != nil {
		return err
	}
	if creds.Password == "" {
		return errors.New(errors.ErrAuth,
			"Key deployment needs the password once",
			"Re-run and enter the password, or use --password-env")
	}

	key := setup.PreferredKey()
	if key == nil || !key.HasPublic {
		path := setup.DefaultKeyPath()
		spin := ui.NewSpinner("Generating " + keyType + " key")
		spin.Start()
		if err := setup.GenerateKey(path, keyType); err != nil {
			spin.Fail()
			return err
		}
		spin.Success()
		key = &setup.KeyInfo{Path: path, PublicPath: path + ".pub", HasPublic: true}
	}

	pubKey, err := setup.ReadPublicKey(key.PublicPath)
	if err != nil {
		return err
	}

	spin := ui.NewSpinner("Deploying key to " + id.Key())
	spin.Start()

	conn, err := transport.Dial(transport.Target{Host: id.Host, User: id.User}, creds, cfg.Connect.Timeout)
	if err != nil {
		spin.Fail()
		return err
	}
	defer conn.Close()

	ftp, err := conn.SFTP()
	if err != nil {
		spin.Fail()
		return err
	}
	added, err := setup.DeployKey(ftp, pubKey)
	ftp.Close()
	if err != nil {
		spin.Fail()
		return err
	}
	spin.Success()

	if !added {
		fmt.Println("Key was already deployed.")
	}

	// Prove the key works before claiming success.
	spin = ui.NewSpinner("Verifying key authentication")
	spin.Start()
	keyConn, err := transport.Dial(transport.Target{Host: id.Host, User: id.User},
		transport.Credentials{KeyPath: key.Path}, cfg.Connect.Timeout)
	if err != nil {
		spin.Fail()
		return errors.WrapWithCode(err, errors.ErrAuth,
			"Key was deployed but key authentication still fails",
			"The remote sshd may restrict keys; check its authorized_keys settings")
	}
	keyConn.Close()
	spin.Success()

	fmt.Printf("\nPasswordless access to %s is ready.\n", id.Key())
	return nil
}

// defaultKeyPath returns the preferred local private key, or empty when the
// machine has none.
func defaultKeyPath() string {
	if key := setup.PreferredKey(); key != nil {
		return key.Path
	}
	return ""
}
