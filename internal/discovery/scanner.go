package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/internal/inventory"
	"github.com/reconlab/recon/internal/logger"
	"github.com/reconlab/recon/pkg/transport"
)

// probeOverhead pads the per-probe context past the remote ping wait, covering
// channel setup and command startup on the far side.
const probeOverhead = 3 * time.Second

// maxSweepPrefix rejects networks wider than a /16. A bench network bigger
// than that is a config mistake, not a scan target.
const maxSweepPrefix = 16

// ScannerOptions configures a Scanner.
type ScannerOptions struct {
	// Workers bounds concurrent probes.
	Workers int
	// ProbeWaitMS is the remote ping reply wait in milliseconds.
	ProbeWaitMS int
	// Logger receives sweep progress messages.
	Logger logger.Logger
}

// Scanner sweeps a network for live nodes by running ping probes on the
// remote host. Each hit is committed to the inventory as it lands, so a
// cancelled sweep keeps everything found so far.
type Scanner struct {
	runner  transport.Runner
	store   *inventory.Store
	id      inventory.HostIdentity
	workers int
	waitMS  int
	log     logger.Logger
}

// NewScanner creates a scanner for one host.
func NewScanner(runner transport.Runner, store *inventory.Store, id inventory.HostIdentity, opts ScannerOptions) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ProbeWaitMS <= 0 {
		opts.ProbeWaitMS = 25
	}
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	return &Scanner{
		runner:  runner,
		store:   store,
		id:      id,
		workers: opts.Workers,
		waitMS:  opts.ProbeWaitMS,
		log:     opts.Logger,
	}
}

// Summary describes a finished sweep.
type Summary struct {
	// Probed is the number of addresses actually probed.
	Probed int
	// Found is the number of live nodes committed.
	Found int
	// Canceled reports whether the sweep was cut short.
	Canceled bool
	// Err is set when the sweep aborted on a transport failure.
	Err error
}

// Sweep is a running scan. Nodes streams live hits as they commit; the
// channel closes when the sweep ends.
type Sweep struct {
	// Nodes receives each live node as it is found.
	Nodes <-chan inventory.DiscoveredNode
	// Total is the number of addresses the sweep will probe.
	Total int

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	summary Summary
}

// Cancel stops dispatching new probes. Probes already in flight finish and
// still commit their results.
func (s *Sweep) Cancel() {
	s.cancel()
}

// Wait blocks until the sweep ends and returns its summary.
func (s *Sweep) Wait() Summary {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Done returns a channel closed when the sweep ends.
func (s *Sweep) Done() <-chan struct{} {
	return s.done
}

// Progress returns a snapshot of the probed and found counts, for live
// progress displays.
func (s *Sweep) Progress() (probed, found int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary.Probed, s.summary.Found
}

// Start begins sweeping the network's address range. ctx cancels dispatch the
// same way Cancel does.
func (s *Scanner) Start(ctx context.Context, network inventory.NetworkInterface) (*Sweep, error) {
	hosts, err := enumerateHosts(network.CIDR)
	if err != nil {
		return nil, err
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	nodes := make(chan inventory.DiscoveredNode, len(hosts))
	sweep := &Sweep{
		Nodes:  nodes,
		Total:  len(hosts),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.run(sweepCtx, sweep, nodes, network.CIDR, hosts)
	return sweep, nil
}

func (s *Scanner) run(ctx context.Context, sweep *Sweep, nodes chan<- inventory.DiscoveredNode, cidr string, hosts []string) {
	defer close(sweep.done)
	defer close(nodes)
	defer sweep.cancel()

	work := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ip := range work {
				s.probe(sweep, nodes, cidr, ip)
			}
		}()
	}

	canceled := false
dispatch:
	for _, ip := range hosts {
		select {
		case work <- ip:
		case <-ctx.Done():
			canceled = true
			break dispatch
		}
	}
	close(work)
	wg.Wait()

	sweep.mu.Lock()
	sweep.summary.Canceled = canceled || sweep.summary.Err != nil
	sweep.mu.Unlock()

	s.log.Debug("sweep of %s done: %d probed, %d found", cidr, sweep.summary.Probed, sweep.summary.Found)
}

// probe pings one address. A failed probe means the node is not live; only a
// broken transport aborts the sweep.
func (s *Scanner) probe(sweep *Sweep, nodes chan<- inventory.DiscoveredNode, cidr, ip string) {
	// Probes run on their own deadline, detached from the sweep context, so
	// cancellation never discards a result already under way.
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.waitMS)*time.Millisecond+probeOverhead)
	defer cancel()

	cmd := fmt.Sprintf("ping -n 1 -w %d %s", s.waitMS, ip)
	result, err := s.runner.Execute(ctx, cmd)

	sweep.mu.Lock()
	sweep.summary.Probed++
	sweep.mu.Unlock()

	if err != nil {
		if errors.IsCode(err, errors.ErrChannel) {
			sweep.mu.Lock()
			if sweep.summary.Err == nil {
				sweep.summary.Err = err
			}
			sweep.mu.Unlock()
			sweep.cancel()
		}
		return
	}
	if !isLive(result) {
		return
	}

	node := inventory.DiscoveredNode{IP: ip, LastSeen: time.Now()}
	if err := s.store.MergeNode(s.id, cidr, node); err != nil {
		s.log.Warn("cannot persist node %s: %v", ip, err)
	}

	sweep.mu.Lock()
	sweep.summary.Found++
	sweep.mu.Unlock()
	nodes <- node
}

// isLive interprets ping output. Exit code 0 alone is not enough: ping
// reports success for "Destination host unreachable" replies from a gateway,
// so a real reply must carry a TTL.
func isLive(result transport.CommandResult) bool {
	return result.ExitCode == 0 && strings.Contains(result.Stdout, "TTL=")
}

// enumerateHosts expands an IPv4 CIDR into probe targets, excluding the
// network and broadcast addresses.
func enumerateHosts(cidr string) ([]string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil || !prefix.Addr().Is4() {
		return nil, errors.New(errors.ErrDiscovery,
			"'"+cidr+"' is not a valid IPv4 network",
			"Expected CIDR notation like 192.168.1.0/24")
	}
	if prefix.Bits() < maxSweepPrefix {
		return nil, errors.New(errors.ErrDiscovery,
			fmt.Sprintf("Network %s is too large to sweep", cidr),
			fmt.Sprintf("Pick a subnet of /%d or smaller", maxSweepPrefix))
	}

	// /31 and /32 have no network or broadcast address to exclude.
	if prefix.Bits() >= 31 {
		var hosts []string
		for addr := prefix.Masked().Addr(); prefix.Contains(addr); addr = addr.Next() {
			hosts = append(hosts, addr.String())
		}
		return hosts, nil
	}

	var hosts []string
	addr := prefix.Masked().Addr().Next()
	for prefix.Contains(addr.Next()) {
		hosts = append(hosts, addr.String())
		addr = addr.Next()
	}
	return hosts, nil
}
