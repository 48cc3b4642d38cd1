package inventory

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/logger"
)

const hostsFileName = "hosts.yaml"

// Store is the persistent host-keyed inventory cache. The file is loaded
// lazily on first reference and rewritten on every merge or refresh.
//
// Locking: hostLock serializes read-modify-write per HostIdentity, so the
// scanner's incremental commits and a concurrent discovery refresh on the
// same host cannot interleave. mu guards the record maps themselves: flush
// marshals every host's record under mu, so writes to any record's maps take
// mu too, even when the writer holds a different host's lock. fileMu
// serializes whole-file rewrites.
type Store struct {
	dir string
	log logger.Logger

	mu     sync.Mutex // guards hosts, locks, loaded, and record contents
	hosts  map[string]*HostRecord
	locks  map[string]*sync.Mutex
	loaded bool

	fileMu sync.Mutex
}

// NewStore creates a store rooted at dir. Nothing is read until first use.
func NewStore(dir string, log logger.Logger) *Store {
	if log == nil {
		log = logger.Noop()
	}
	return &Store{
		dir:   dir,
		log:   log,
		hosts: make(map[string]*HostRecord),
		locks: make(map[string]*sync.Mutex),
	}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, hostsFileName)
}

// Record returns a copy of the cached record for id, creating an empty one
// in memory if the host was never seen. The copy is safe to hold without
// further locking.
func (s *Store) Record(id HostIdentity) *HostRecord {
	lock := s.hostLock(id)
	lock.Lock()
	defer lock.Unlock()

	rec := s.recordLocked(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return rec.clone()
}

// Touch marks id as the most recently active host and persists the record.
// Called by the session manager on successful connect.
func (s *Store) Touch(id HostIdentity) error {
	lock := s.hostLock(id)
	lock.Lock()
	defer lock.Unlock()

	rec := s.recordLocked(id)
	s.mu.Lock()
	rec.LastActive = time.Now()
	s.mu.Unlock()
	return s.flush()
}

// Hosts returns copies of every cached record, most recently active first.
func (s *Store) Hosts() []*HostRecord {
	s.ensureLoaded()

	s.mu.Lock()
	out := make([]*HostRecord, 0, len(s.hosts))
	for _, rec := range s.hosts {
		out = append(out, rec.clone())
	}
	s.mu.Unlock()

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].LastActive.After(out[j-1].LastActive); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// LastActive returns the most recently active record, or nil.
func (s *Store) LastActive() *HostRecord {
	hosts := s.Hosts()
	if len(hosts) == 0 {
		return nil
	}
	return hosts[0]
}

// MergeConsoles unions devices into the host's console set and persists.
// Returns the merged set.
func (s *Store) MergeConsoles(id HostIdentity, devices []ConsoleDevice) ([]ConsoleDevice, error) {
	return s.mutateConsoles(id, devices, false)
}

// ReplaceConsoles discards the cached console set and persists only devices.
func (s *Store) ReplaceConsoles(id HostIdentity, devices []ConsoleDevice) ([]ConsoleDevice, error) {
	return s.mutateConsoles(id, devices, true)
}

func (s *Store) mutateConsoles(id HostIdentity, devices []ConsoleDevice, replace bool) ([]ConsoleDevice, error) {
	lock := s.hostLock(id)
	lock.Lock()
	defer lock.Unlock()

	rec := s.recordLocked(id)
	s.mu.Lock()
	if replace {
		rec.Consoles = make(map[string]ConsoleDevice, len(devices))
	}
	for _, d := range devices {
		rec.Consoles[d.Name] = d
	}
	merged := rec.ConsoleList()
	s.mu.Unlock()

	if err := s.flush(); err != nil {
		return nil, err
	}
	return merged, nil
}

// MergeNetworks unions interfaces into the host's network set and persists.
func (s *Store) MergeNetworks(id HostIdentity, nets []NetworkInterface) ([]NetworkInterface, error) {
	return s.mutateNetworks(id, nets, false)
}

// ReplaceNetworks discards the cached network set and persists only nets.
func (s *Store) ReplaceNetworks(id HostIdentity, nets []NetworkInterface) ([]NetworkInterface, error) {
	return s.mutateNetworks(id, nets, true)
}

func (s *Store) mutateNetworks(id HostIdentity, nets []NetworkInterface, replace bool) ([]NetworkInterface, error) {
	lock := s.hostLock(id)
	lock.Lock()
	defer lock.Unlock()

	rec := s.recordLocked(id)
	s.mu.Lock()
	if replace {
		rec.Networks = make(map[string]NetworkInterface, len(nets))
	}
	for _, n := range nets {
		rec.Networks[n.Name] = n
	}
	merged := rec.NetworkList()
	s.mu.Unlock()

	if err := s.flush(); err != nil {
		return nil, err
	}
	return merged, nil
}

// MergeNode commits a single discovered node into a network bucket and
// persists immediately. This is the scanner's incremental-commit path: a
// cancelled sweep still leaves every node found so far on disk.
func (s *Store) MergeNode(id HostIdentity, cidr string, node DiscoveredNode) error {
	lock := s.hostLock(id)
	lock.Lock()
	defer lock.Unlock()

	rec := s.recordLocked(id)
	s.mu.Lock()
	bucket := rec.Nodes[cidr]
	if bucket == nil {
		bucket = make(map[string]DiscoveredNode)
		rec.Nodes[cidr] = bucket
	}
	bucket[node.IP] = node
	s.mu.Unlock()
	return s.flush()
}

// ReplaceNodes discards a network bucket and persists only nodes.
func (s *Store) ReplaceNodes(id HostIdentity, cidr string, nodes []DiscoveredNode) error {
	lock := s.hostLock(id)
	lock.Lock()
	defer lock.Unlock()

	rec := s.recordLocked(id)
	bucket := make(map[string]DiscoveredNode, len(nodes))
	for _, n := range nodes {
		bucket[n.IP] = n
	}
	s.mu.Lock()
	rec.Nodes[cidr] = bucket
	s.mu.Unlock()
	return s.flush()
}

// hostLock returns the mutex guarding one host's record.
func (s *Store) hostLock(id HostIdentity) *sync.Mutex {
	s.ensureLoaded()

	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id.Key()]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id.Key()] = lock
	}
	return lock
}

// recordLocked fetches or creates the live record. Caller holds the host lock.
func (s *Store) recordLocked(id HostIdentity) *HostRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.hosts[id.Key()]
	if !ok {
		rec = newHostRecord(id)
		s.hosts[id.Key()] = rec
	}
	return rec
}

// ensureLoaded reads the backing file once. A missing or corrupt file is
// never fatal: the store starts empty and the first merge rewrites it.
func (s *Store) ensureLoaded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return
	}
	s.loaded = true

	data, err := os.ReadFile(s.Path())
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("cannot read host cache %s: %v", s.Path(), err)
		}
		return
	}

	var onDisk map[string]*HostRecord
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		s.log.Warn("host cache %s is corrupt, starting empty: %v", s.Path(), err)
		return
	}

	for key, rec := range onDisk {
		if rec == nil {
			continue
		}
		if rec.Consoles == nil {
			rec.Consoles = make(map[string]ConsoleDevice)
		}
		if rec.Networks == nil {
			rec.Networks = make(map[string]NetworkInterface)
		}
		if rec.Nodes == nil {
			rec.Nodes = make(map[string]map[string]DiscoveredNode)
		}
		s.hosts[key] = rec
	}
}

// flush rewrites the backing file. The marshal runs under mu, the same lock
// every record mutation takes, so the snapshot sees no torn writes from
// merges on other hosts; fileMu serializes writers.
func (s *Store) flush() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	s.mu.Lock()
	data, err := yaml.Marshal(s.hosts)
	s.mu.Unlock()
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCache,
			"Failed to encode host cache", "")
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return errors.WrapWithCode(err, errors.ErrCache,
			"Failed to create cache directory "+s.dir,
			"Check permissions on the parent directory")
	}
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return errors.WrapWithCode(err, errors.ErrCache,
			"Failed to write host cache "+s.Path(),
			"Check free space and permissions")
	}
	return nil
}
