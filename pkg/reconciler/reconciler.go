package reconciler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/herald/pkg/events"
	"github.com/cuemby/herald/pkg/log"
	"github.com/cuemby/herald/pkg/manager"
	"github.com/cuemby/herald/pkg/metrics"
	"github.com/cuemby/herald/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout is how long a peer may stay silent before it is lost
	DefaultTimeout = 5 * time.Second

	// DefaultInterval is how often peers are checked
	DefaultInterval = time.Second
)

// Config holds configuration for creating a Reconciler
type Config struct {
	Manager  *manager.EventManager
	Broker   *events.Broker
	Timeout  time.Duration
	Interval time.Duration

	// Now replaces the clock, for tests
	Now func() time.Time
}

// PeerStatus is the liveness view of one peer
type PeerStatus struct {
	Address   types.Address
	LastHeard time.Time
}

// Loss describes the peers dropped by one sweep and the cascade they caused
type Loss struct {
	Scope  string
	Target string
	Peers  []types.Address
	Result manager.CascadeResult
}

// Reconciler keeps the event repository consistent with the set of peers
// that are still talking to us. Every inbound packet refreshes its source
// through Touch; peers silent for longer than the timeout are dropped and
// their events cascaded away.
type Reconciler struct {
	manager  *manager.EventManager
	broker   *events.Broker
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu     sync.RWMutex
	peers  map[types.Address]time.Time
	stopCh chan struct{}
}

// NewReconciler creates a new reconciler
func NewReconciler(cfg *Config) *Reconciler {
	r := &Reconciler{
		manager:  cfg.Manager,
		broker:   cfg.Broker,
		timeout:  cfg.Timeout,
		interval: cfg.Interval,
		now:      cfg.Now,
		logger:   log.WithComponent("reconciler"),
		peers:    make(map[types.Address]time.Time),
		stopCh:   make(chan struct{}),
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.interval <= 0 {
		r.interval = DefaultInterval
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Touch records that addr was heard from. Wildcard addresses are ignored.
func (r *Reconciler) Touch(addr types.Address) {
	if addr.HasWildcard() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[addr] = r.now()
}

// Forget stops tracking addr without cascading
func (r *Reconciler) Forget(addr types.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, addr)
}

// Peers returns the tracked peers in address order
func (r *Reconciler) Peers() []PeerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PeerStatus, 0, len(r.peers))
	for addr, at := range r.peers {
		out = append(out, PeerStatus{Address: addr, LastHeard: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Less(out[j].Address) })
	return out
}

// Start begins the reconciliation loop in the background
func (r *Reconciler) Start() {
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-r.stopCh
			cancel()
		}()
		_ = r.Run(ctx)
	}()
}

// Stop stops a reconciler started with Start
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

// Run is the main reconciliation loop. It returns when ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reconcile performs one sweep. Silent peers are grouped so that a node
// or subsystem that went quiet as a whole is removed with one cascade.
func (r *Reconciler) reconcile() []Loss {
	now := r.now()

	r.mu.Lock()
	var lost []types.Address
	for addr, at := range r.peers {
		if now.Sub(at) > r.timeout {
			lost = append(lost, addr)
			delete(r.peers, addr)
		}
	}
	aliveNodes := make(map[[2]uint8]bool)
	aliveSubsystems := make(map[uint8]bool)
	for addr := range r.peers {
		aliveNodes[[2]uint8{addr.Subsystem, addr.Node}] = true
		aliveSubsystems[addr.Subsystem] = true
	}
	r.mu.Unlock()

	if len(lost) == 0 {
		return nil
	}
	sort.Slice(lost, func(i, j int) bool { return lost[i].Less(lost[j]) })

	bySubsystem := make(map[uint8][]types.Address)
	for _, addr := range lost {
		bySubsystem[addr.Subsystem] = append(bySubsystem[addr.Subsystem], addr)
	}

	var losses []Loss
	for _, subsystem := range sortedKeys(bySubsystem) {
		peers := bySubsystem[subsystem]
		if !aliveSubsystems[subsystem] && spansNodes(peers) {
			losses = append(losses, r.SubsystemLost(subsystem, peers...))
			continue
		}

		byNode := make(map[uint8][]types.Address)
		for _, addr := range peers {
			byNode[addr.Node] = append(byNode[addr.Node], addr)
		}
		for _, node := range sortedKeys(byNode) {
			nodePeers := byNode[node]
			if !aliveNodes[[2]uint8{subsystem, node}] && len(nodePeers) > 1 {
				losses = append(losses, r.NodeLost(subsystem, node, nodePeers...))
				continue
			}
			for _, addr := range nodePeers {
				losses = append(losses, r.ComponentLost(addr))
			}
		}
	}
	return losses
}

// ComponentLost drops every event involving addr
func (r *Reconciler) ComponentLost(addr types.Address) Loss {
	r.Forget(addr)
	res := r.manager.DeleteComponent(addr)
	return r.report("component", addr.String(), []types.Address{addr}, res)
}

// NodeLost drops every event involving a component of the node
func (r *Reconciler) NodeLost(subsystem, node uint8, peers ...types.Address) Loss {
	r.forgetMatching(func(a types.Address) bool { return a.InNode(subsystem, node) })
	res := r.manager.DeleteComponentsFromNode(subsystem, node)
	return r.report("node", fmt.Sprintf("%d.%d", subsystem, node), peers, res)
}

// SubsystemLost drops every event involving a component of the subsystem
func (r *Reconciler) SubsystemLost(subsystem uint8, peers ...types.Address) Loss {
	r.forgetMatching(func(a types.Address) bool { return a.InSubsystem(subsystem) })
	res := r.manager.DeleteComponentsFromSubsystem(subsystem)
	return r.report("subsystem", fmt.Sprintf("%d", subsystem), peers, res)
}

func (r *Reconciler) forgetMatching(match func(types.Address) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr := range r.peers {
		if match(addr) {
			delete(r.peers, addr)
		}
	}
}

func (r *Reconciler) report(scope, target string, peers []types.Address, res manager.CascadeResult) Loss {
	metrics.PeersLost.Add(float64(len(peers)))

	r.logger.Info().
		Str("scope", scope).
		Str("target", target).
		Int("peers", len(peers)).
		Int("subscriptions_lost", len(res.SubscriptionsLost)).
		Int("subscribers_removed", res.SubscribersRemoved).
		Int("produced_deleted", len(res.ProducedDeleted)).
		Msg("Peer lost")

	r.broker.Publish(&events.Notice{
		Type:    events.NoticePeerLost,
		Message: fmt.Sprintf("%s %s lost", scope, target),
		Metadata: map[string]string{
			"scope":              scope,
			"target":             target,
			"subscriptions_lost": fmt.Sprintf("%d", len(res.SubscriptionsLost)),
		},
	})

	return Loss{Scope: scope, Target: target, Peers: peers, Result: res}
}

func spansNodes(peers []types.Address) bool {
	for _, p := range peers[1:] {
		if p.Node != peers[0].Node {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[uint8]V) []uint8 {
	keys := make([]uint8, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
