package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    HostIdentity
		wantErr bool
	}{
		{name: "user at host", in: "lab@10.0.0.5", want: HostIdentity{Host: "10.0.0.5", User: "lab"}},
		{name: "hostname", in: "admin@bench-pc", want: HostIdentity{Host: "bench-pc", User: "admin"}},
		{name: "no user", in: "10.0.0.5", wantErr: true},
		{name: "no host", in: "lab@", wantErr: true},
		{name: "empty user", in: "@10.0.0.5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentity(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.Key())
		})
	}
}

func TestHostRecord_SortedLists(t *testing.T) {
	rec := newHostRecord(HostIdentity{Host: "10.0.0.5", User: "lab"})
	rec.Consoles["B"] = ConsoleDevice{Name: "B", Path: "COM5"}
	rec.Consoles["A"] = ConsoleDevice{Name: "A", Path: "COM3"}
	rec.Nodes["192.168.7.0/24"] = map[string]DiscoveredNode{
		"192.168.7.9": {IP: "192.168.7.9"},
		"192.168.7.2": {IP: "192.168.7.2"},
	}

	consoles := rec.ConsoleList()
	require.Len(t, consoles, 2)
	assert.Equal(t, "A", consoles[0].Name)

	nodes := rec.NodeList("192.168.7.0/24")
	require.Len(t, nodes, 2)
	assert.Equal(t, "192.168.7.2", nodes[0].IP)

	assert.Empty(t, rec.NodeList("10.0.0.0/8"), "unknown bucket is empty, not nil panic")
}

func TestHostRecord_CloneIsDeep(t *testing.T) {
	rec := newHostRecord(HostIdentity{Host: "10.0.0.5", User: "lab"})
	rec.LastActive = time.Now()
	rec.Networks["Bench"] = NetworkInterface{Name: "Bench", CIDR: "192.168.7.0/24"}
	rec.Nodes["192.168.7.0/24"] = map[string]DiscoveredNode{"192.168.7.3": {IP: "192.168.7.3"}}

	cp := rec.clone()
	cp.Networks["Evil"] = NetworkInterface{Name: "Evil"}
	cp.Nodes["192.168.7.0/24"]["192.168.7.99"] = DiscoveredNode{IP: "192.168.7.99"}

	assert.Len(t, rec.Networks, 1, "clone must not alias network map")
	assert.Len(t, rec.Nodes["192.168.7.0/24"], 1, "clone must not alias node buckets")
}
