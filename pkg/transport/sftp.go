package transport

import (
	"github.com/pkg/sftp"

	"github.com/reconlab/recon/internal/errors"
)

// SFTP opens a file-transfer channel on the connection. The caller owns the
// returned client and must close it; closing it does not close the transport.
func (c *Client) SFTP() (*sftp.Client, error) {
	client, err := c.conn()
	if err != nil {
		return nil, err
	}

	c.chanMu.Lock()
	defer c.chanMu.Unlock()

	ftp, err := sftp.NewClient(client)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrChannel,
			"Can't open a file transfer channel to "+c.target.Host,
			"The remote SSH server may have the sftp subsystem disabled")
	}
	return ftp, nil
}
