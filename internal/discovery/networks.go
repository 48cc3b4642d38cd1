package discovery

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/inventory"
	"github.com/reconlab/recon/pkg/transport"
)

// networkCommand enumerates interface addressing on the remote host.
const networkCommand = "ipconfig"

var (
	adapterRe = regexp.MustCompile(`^\s*(?:Ethernet|Wireless LAN|PPP|Tunnel) adapter (.+):\s*$`)
	ipv4Re    = regexp.MustCompile(`IPv4 Address[ .]*:\s*(\d+\.\d+\.\d+\.\d+)`)
	maskRe    = regexp.MustCompile(`Subnet Mask[ .]*:\s*(\d+\.\d+\.\d+\.\d+)`)
)

// Networks discovers local network interfaces on the remote host.
type Networks struct {
	runner transport.Runner
	store  *inventory.Store
	id     inventory.HostIdentity
}

// NewNetworks creates a network discovery service for one host.
func NewNetworks(runner transport.Runner, store *inventory.Store, id inventory.HostIdentity) *Networks {
	return &Networks{runner: runner, store: store, id: id}
}

// List enumerates interfaces and unions them with the cached set.
func (n *Networks) List(ctx context.Context) ([]inventory.NetworkInterface, error) {
	nets, err := n.enumerate(ctx)
	if err != nil {
		return nil, err
	}
	return n.store.MergeNetworks(n.id, nets)
}

// Refresh enumerates interfaces and replaces the cached set with the result.
func (n *Networks) Refresh(ctx context.Context) ([]inventory.NetworkInterface, error) {
	nets, err := n.enumerate(ctx)
	if err != nil {
		return nil, err
	}
	return n.store.ReplaceNetworks(n.id, nets)
}

func (n *Networks) enumerate(ctx context.Context) ([]inventory.NetworkInterface, error) {
	result, err := n.runner.Execute(ctx, networkCommand)
	if err != nil {
		return nil, err
	}
	if err := checkCapability("ipconfig", result); err != nil {
		return nil, err
	}
	return parseNetworkOutput(result.Stdout)
}

// parseNetworkOutput walks ipconfig output, pairing each adapter heading
// with the IPv4 address and subnet mask that follow it. Only private,
// non-loopback networks make it into the inventory: those are the bench
// networks the nodes live on.
func parseNetworkOutput(out string) ([]inventory.NetworkInterface, error) {
	if !strings.Contains(out, "IP Configuration") && !strings.Contains(out, "adapter") {
		return nil, errors.New(errors.ErrDiscovery,
			"Unexpected interface listing format",
			"The remote ipconfig output changed; re-run with RECON_DEBUG=1 and report the output")
	}

	var nets []inventory.NetworkInterface
	adapter := ""
	ip := ""

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if m := adapterRe.FindStringSubmatch(line); m != nil {
			adapter = strings.TrimSpace(m[1])
			ip = ""
			continue
		}
		if m := ipv4Re.FindStringSubmatch(line); m != nil {
			ip = m[1]
			continue
		}
		m := maskRe.FindStringSubmatch(line)
		if m == nil || ip == "" {
			continue
		}

		cidr, ok := toCIDR(ip, m[1])
		ip = ""
		if !ok {
			continue
		}
		name := adapter
		if name == "" {
			name = fmt.Sprintf("adapter-%d", len(nets)+1)
		}
		nets = append(nets, inventory.NetworkInterface{Name: name, CIDR: cidr})
	}

	return nets, nil
}

// toCIDR converts address+mask into the network CIDR, filtering loopback and
// public ranges.
func toCIDR(addr, mask string) (string, bool) {
	ip := net.ParseIP(addr).To4()
	maskIP := net.ParseIP(mask).To4()
	if ip == nil || maskIP == nil {
		return "", false
	}

	m := net.IPv4Mask(maskIP[0], maskIP[1], maskIP[2], maskIP[3])
	ones, bits := m.Size()
	if bits != 32 || ones == 0 {
		return "", false
	}

	network := ip.Mask(m)
	if network == nil || ip.IsLoopback() || !ip.IsPrivate() {
		return "", false
	}
	return fmt.Sprintf("%s/%d", network.String(), ones), true
}
