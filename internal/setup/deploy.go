package setup

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/sftp"

	"github.com/reconlab/recon/internal/errors"
)

// authorizedKeysPath is relative to the sftp start directory, which OpenSSH
// pins to the user's home.
const authorizedKeysPath = ".ssh/authorized_keys"

// DeployKey appends pubKey to the remote authorized_keys file, creating the
// directory and file as needed. Returns false when the key was already there.
func DeployKey(ftp *sftp.Client, pubKey string) (bool, error) {
	pubKey = strings.TrimSpace(pubKey)
	if pubKey == "" {
		return false, errors.New(errors.ErrConfig,
			"Public key is empty",
			"Generate one first: recon setup")
	}

	if err := ftp.MkdirAll(".ssh"); err != nil {
		return false, errors.WrapWithCode(err, errors.ErrChannel,
			"Can't create remote .ssh directory",
			"Check the remote home directory permissions")
	}

	existing, err := readRemoteFile(ftp, authorizedKeysPath)
	if err != nil && !os.IsNotExist(err) {
		return false, errors.WrapWithCode(err, errors.ErrChannel,
			"Can't read remote authorized_keys", "")
	}

	for _, line := range strings.Split(existing, "\n") {
		if strings.TrimSpace(line) == pubKey {
			return false, nil
		}
	}

	content := existing
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += pubKey + "\n"

	f, err := ftp.OpenFile(authorizedKeysPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return false, errors.WrapWithCode(err, errors.ErrChannel,
			"Can't write remote authorized_keys", "")
	}
	if _, err := f.Write([]byte(content)); err != nil {
		f.Close()
		return false, errors.WrapWithCode(err, errors.ErrChannel,
			"Can't write remote authorized_keys", "")
	}
	if err := f.Close(); err != nil {
		return false, errors.WrapWithCode(err, errors.ErrChannel,
			"Can't write remote authorized_keys", "")
	}

	// Tighten permissions where the remote side honors them.
	_ = ftp.Chmod(authorizedKeysPath, 0600)

	return true, nil
}

func readRemoteFile(ftp *sftp.Client, path string) (string, error) {
	f, err := ftp.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
