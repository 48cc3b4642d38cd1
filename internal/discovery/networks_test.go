package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/inventory"
	"github.com/reconlab/recon/internal/logger"
	transporttest "github.com/reconlab/recon/pkg/transport/testing"
)

const ipconfigOutput = "\r\n" +
	"Windows IP Configuration\r\n" +
	"\r\n" +
	"Ethernet adapter Bench Network:\r\n" +
	"\r\n" +
	"   Connection-specific DNS Suffix  . :\r\n" +
	"   IPv4 Address. . . . . . . . . . . : 192.168.7.10\r\n" +
	"   Subnet Mask . . . . . . . . . . . : 255.255.255.0\r\n" +
	"   Default Gateway . . . . . . . . . :\r\n" +
	"\r\n" +
	"Ethernet adapter Uplink:\r\n" +
	"\r\n" +
	"   IPv4 Address. . . . . . . . . . . : 203.0.113.44\r\n" +
	"   Subnet Mask . . . . . . . . . . . : 255.255.255.0\r\n" +
	"\r\n" +
	"Wireless LAN adapter Wi-Fi:\r\n" +
	"\r\n" +
	"   IPv4 Address. . . . . . . . . . . : 10.20.0.3\r\n" +
	"   Subnet Mask . . . . . . . . . . . : 255.255.0.0\r\n"

func newNetworkFixture(t *testing.T) (*Networks, *transporttest.MockTransport, *inventory.Store) {
	t.Helper()
	mock := transporttest.NewMockTransport("10.0.0.5", "lab")
	store := inventory.NewStore(t.TempDir(), logger.Noop())
	return NewNetworks(mock, store, benchID), mock, store
}

func TestNetworks_List(t *testing.T) {
	networks, mock, _ := newNetworkFixture(t)
	mock.Script(networkCommand, transporttest.CommandResponse{Stdout: ipconfigOutput})

	nets, err := networks.List(context.Background())
	require.NoError(t, err)
	require.Len(t, nets, 2, "public addresses are filtered out")

	assert.Equal(t, "Bench Network", nets[0].Name)
	assert.Equal(t, "192.168.7.0/24", nets[0].CIDR)
	assert.Equal(t, "Wi-Fi", nets[1].Name)
	assert.Equal(t, "10.20.0.0/16", nets[1].CIDR)
}

func TestNetworks_RefreshReplacesCache(t *testing.T) {
	networks, mock, store := newNetworkFixture(t)
	_, err := store.MergeNetworks(benchID, []inventory.NetworkInterface{
		{Name: "Stale", CIDR: "172.16.0.0/24"},
	})
	require.NoError(t, err)

	mock.Script(networkCommand, transporttest.CommandResponse{Stdout: ipconfigOutput})
	nets, err := networks.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, nets, 2)
	for _, n := range nets {
		assert.NotEqual(t, "Stale", n.Name)
	}
}

func TestNetworks_ToolMissing(t *testing.T) {
	networks, _, store := newNetworkFixture(t)

	_, err := networks.List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCapability))
	assert.Empty(t, store.Record(benchID).NetworkList())
}

func TestNetworks_UnexpectedFormat(t *testing.T) {
	networks, mock, store := newNetworkFixture(t)
	mock.Script(networkCommand, transporttest.CommandResponse{
		Stdout: "inet 192.168.1.4 netmask 0xffffff00 broadcast 192.168.1.255\n",
	})

	_, err := networks.List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrDiscovery))
	assert.Empty(t, store.Record(benchID).NetworkList(), "a failed listing never touches the cache")
}

func TestToCIDR(t *testing.T) {
	tests := []struct {
		name string
		addr string
		mask string
		want string
		ok   bool
	}{
		{"class c", "192.168.7.10", "255.255.255.0", "192.168.7.0/24", true},
		{"wide private", "10.20.0.3", "255.255.0.0", "10.20.0.0/16", true},
		{"rfc1918 172", "172.31.4.2", "255.255.255.128", "172.31.4.0/25", true},
		{"public", "203.0.113.44", "255.255.255.0", "", false},
		{"loopback", "127.0.0.1", "255.0.0.0", "", false},
		{"garbage mask", "192.168.7.10", "255.0.255.0", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toCIDR(tt.addr, tt.mask)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
