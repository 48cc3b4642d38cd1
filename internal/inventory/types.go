// Package inventory holds the discovered-resource model and the persistent
// per-host store. Discovery services merge into the store; the store survives
// process restarts so panels have data before any remote traffic happens.
package inventory

import (
	"fmt"
	"strings"
	"time"
)

// HostIdentity uniquely identifies a remote target for caching purposes.
// Immutable once a session starts.
type HostIdentity struct {
	Host string `yaml:"host"`
	User string `yaml:"user"`
}

// Key returns the cache key for this identity, e.g. "lab@10.0.0.5".
func (id HostIdentity) Key() string {
	return id.User + "@" + id.Host
}

// ParseIdentity parses "user@host" into a HostIdentity.
func ParseIdentity(s string) (HostIdentity, error) {
	at := strings.Index(s, "@")
	if at <= 0 || at == len(s)-1 {
		return HostIdentity{}, fmt.Errorf("expected user@host, got %q", s)
	}
	return HostIdentity{User: s[:at], Host: s[at+1:]}, nil
}

// ConsoleDevice is a serial console on the remote host.
// Value type with set semantics keyed by Name.
type ConsoleDevice struct {
	// Name is the human-readable device caption.
	Name string `yaml:"name"`
	// Path is the remote device path, e.g. "COM3".
	Path string `yaml:"path"`
}

// NetworkInterface is a network attached to the remote host.
// Value type with set semantics keyed by Name.
type NetworkInterface struct {
	Name string `yaml:"name"`
	// CIDR is the interface subnet, e.g. "192.168.7.0/24".
	CIDR string `yaml:"cidr"`
}

// DiscoveredNode is an address that answered a liveness probe. A node is
// "live" only within the scan that found it; staleness shows via LastSeen
// but entries are never auto-purged.
type DiscoveredNode struct {
	IP       string    `yaml:"ip"`
	LastSeen time.Time `yaml:"last_seen"`
}

// HostRecord is everything cached for one HostIdentity.
type HostRecord struct {
	Identity HostIdentity `yaml:"identity"`
	// LastActive marks the most recent connect, used to prefill the next
	// connect prompt.
	LastActive time.Time                   `yaml:"last_active"`
	Consoles   map[string]ConsoleDevice    `yaml:"consoles,omitempty"`
	Networks   map[string]NetworkInterface `yaml:"networks,omitempty"`
	// Nodes buckets discovered nodes per network CIDR, keyed by IP.
	Nodes map[string]map[string]DiscoveredNode `yaml:"nodes,omitempty"`
}

func newHostRecord(id HostIdentity) *HostRecord {
	return &HostRecord{
		Identity: id,
		Consoles: make(map[string]ConsoleDevice),
		Networks: make(map[string]NetworkInterface),
		Nodes:    make(map[string]map[string]DiscoveredNode),
	}
}

// clone returns a deep copy so callers never alias store-owned maps.
func (r *HostRecord) clone() *HostRecord {
	out := newHostRecord(r.Identity)
	out.LastActive = r.LastActive
	for k, v := range r.Consoles {
		out.Consoles[k] = v
	}
	for k, v := range r.Networks {
		out.Networks[k] = v
	}
	for cidr, bucket := range r.Nodes {
		dst := make(map[string]DiscoveredNode, len(bucket))
		for ip, n := range bucket {
			dst[ip] = n
		}
		out.Nodes[cidr] = dst
	}
	return out
}

// ConsoleList returns consoles sorted by name for display.
func (r *HostRecord) ConsoleList() []ConsoleDevice {
	return sortedValues(r.Consoles, func(c ConsoleDevice) string { return c.Name })
}

// NetworkList returns interfaces sorted by name for display.
func (r *HostRecord) NetworkList() []NetworkInterface {
	return sortedValues(r.Networks, func(n NetworkInterface) string { return n.Name })
}

// NodeList returns the nodes of one network bucket sorted by IP.
func (r *HostRecord) NodeList(cidr string) []DiscoveredNode {
	return sortedValues(r.Nodes[cidr], func(n DiscoveredNode) string { return n.IP })
}

func sortedValues[V any](m map[string]V, key func(V) string) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	// Insertion sort: inventories are small (dozens of entries).
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && key(out[j]) < key(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
