package spawn

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/inventory"
	"github.com/reconlab/recon/internal/logger"
	transporttest "github.com/reconlab/recon/pkg/transport/testing"
)

type fakeRegistrar struct {
	registered int
	released   []string
}

func (r *fakeRegistrar) Register(c io.Closer) string {
	r.registered++
	return "handle-1"
}

func (r *fakeRegistrar) Release(handle string) {
	r.released = append(r.released, handle)
}

func newFixture(t *testing.T) (*Spawner, *transporttest.MockTransport, *fakeRegistrar) {
	t.Helper()
	mock := transporttest.NewMockTransport("10.0.0.5", "lab")
	reg := &fakeRegistrar{}
	return New(mock, mock, reg, logger.Noop()), mock, reg
}

func TestShell_StartsPowershell(t *testing.T) {
	spawner, mock, reg := newFixture(t)

	require.NoError(t, spawner.Shell())

	assert.Equal(t, []string{"powershell"}, mock.StartedCommands())
	assert.Equal(t, 1, reg.registered, "the channel rides the session lifetime")
	assert.Equal(t, []string{"handle-1"}, reg.released, "a clean exit detaches the channel")
}

func TestConsole_RunsPlinkWithSerialConfig(t *testing.T) {
	spawner, mock, _ := newFixture(t)
	mock.Script("where plink", transporttest.CommandResponse{
		Stdout: `C:\Program Files\PuTTY\plink.exe` + "\r\n",
	})

	device := inventory.ConsoleDevice{Name: "USB Serial Port (COM3)", Path: "COM3"}
	require.NoError(t, spawner.Console(context.Background(), device, DefaultSerialParams()))

	assert.Equal(t,
		[]string{"plink -serial COM3 -sercfg 115200,8,n,1,X"},
		mock.StartedCommands())
}

func TestConsole_PlinkMissing(t *testing.T) {
	spawner, mock, reg := newFixture(t)
	// Unscripted "where plink" reports an unknown command.

	device := inventory.ConsoleDevice{Name: "USB Serial Port (COM3)", Path: "COM3"}
	err := spawner.Console(context.Background(), device, DefaultSerialParams())

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCapability))
	assert.Empty(t, mock.StartedCommands(), "no channel opens for a missing tool")
	assert.Zero(t, reg.registered)
}

func TestSerialParams_Command(t *testing.T) {
	p := SerialParams{Baud: 9600, DataBits: 7, Parity: "e", StopBits: 2, FlowControl: "N"}
	assert.Equal(t, "plink -serial COM7 -sercfg 9600,7,e,2,N", p.command("COM7"))
}
