package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/herald/pkg/events"
	"github.com/cuemby/herald/pkg/log"
	"github.com/cuemby/herald/pkg/manager"
	"github.com/cuemby/herald/pkg/metrics"
	"github.com/cuemby/herald/pkg/reconciler"
	"github.com/cuemby/herald/pkg/scheduler"
	"github.com/cuemby/herald/pkg/storage"
	"github.com/cuemby/herald/pkg/transport"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for creating a Node
type Config struct {
	Address types.Address
	Conn    transport.Conn

	// Broker receives lifecycle notices. A private broker is created
	// when nil.
	Broker *events.Broker
	// Store journals confirmed subscriptions. Optional.
	Store storage.Store
	// Peers receive a heartbeat every HeartbeatInterval
	Peers []types.Address

	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	PeerTimeout       time.Duration
	SweepInterval     time.Duration
	SchedulerTick     time.Duration

	Registry       *wire.Registry
	TracerProvider trace.TracerProvider
}

// Node is one herald component: the event manager plus everything that
// moves packets in and out of it
type Node struct {
	addr       types.Address
	conn       transport.Conn
	broker     *events.Broker
	ownBroker  bool
	store      storage.Store
	peers      []types.Address
	heartbeat  time.Duration
	registry   *wire.Registry
	tracer     trace.Tracer
	logger     zerolog.Logger
	manager    *manager.EventManager
	catalog    *scheduler.Catalog
	scheduler  *scheduler.Scheduler
	reconciler *reconciler.Reconciler

	shuttingDown atomic.Bool

	mu       sync.RWMutex
	handlers []func(Notification)
	lastSeq  map[string]uint8
}

// New creates a node for cfg.Address on cfg.Conn
func New(cfg *Config) (*Node, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("node %s: %w", cfg.Address, manager.ErrNoTransport)
	}

	n := &Node{
		addr:      cfg.Address,
		conn:      cfg.Conn,
		broker:    cfg.Broker,
		store:     cfg.Store,
		peers:     cfg.Peers,
		heartbeat: cfg.HeartbeatInterval,
		registry:  cfg.Registry,
		logger:    log.WithAddress(cfg.Address).With().Str("component", "node").Logger(),
		catalog:   scheduler.NewCatalog(),
		lastSeq:   make(map[string]uint8),
	}
	if n.registry == nil {
		n.registry = wire.DefaultRegistry
	}
	if n.heartbeat <= 0 {
		n.heartbeat = time.Second
	}
	if n.broker == nil {
		n.broker = events.NewBroker()
		n.broker.Start()
		n.ownBroker = true
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	n.tracer = tp.Tracer("herald")

	mgr, err := manager.NewEventManager(&manager.Config{
		Owner:          cfg.Address,
		Transport:      cfg.Conn,
		Broker:         n.broker,
		RequestTimeout: cfg.RequestTimeout,
		Registry:       n.registry,
	})
	if err != nil {
		return nil, err
	}
	n.manager = mgr
	n.scheduler = scheduler.NewScheduler(mgr, n.catalog, cfg.SchedulerTick)
	n.reconciler = reconciler.NewReconciler(&reconciler.Config{
		Manager:  mgr,
		Broker:   n.broker,
		Timeout:  cfg.PeerTimeout,
		Interval: cfg.SweepInterval,
	})
	return n, nil
}

// Address returns the component address of the node
func (n *Node) Address() types.Address {
	return n.addr
}

// Manager returns the event repository of the node
func (n *Node) Manager() *manager.EventManager {
	return n.manager
}

// Broker returns the lifecycle notice broker
func (n *Node) Broker() *events.Broker {
	return n.broker
}

// Peers returns the liveness view of every peer heard from
func (n *Node) Peers() []reconciler.PeerStatus {
	return n.reconciler.Peers()
}

// RegisterSource declares a payload the node can provide and the function
// that produces it when an event fires
func (n *Node) RegisterSource(p manager.Payload, fn scheduler.SourceFunc) {
	n.manager.RegisterPayload(p)
	n.catalog.Register(p.Query, fn)
}

// OnNotification adds a callback for notifications of subscribed events.
// Callbacks run on the receive loop; they must return quickly and must not
// wait on requests of their own.
func (n *Node) OnNotification(fn func(Notification)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, fn)
}

// Run serves the node until ctx is done. It supervises the receive loop,
// the periodic scheduler, the peer reconciler, heartbeats and the journal
// watcher; the first to fail stops the others.
func (n *Node) Run(ctx context.Context) error {
	metrics.RegisterComponent(metrics.ComponentTransport, true, "serving")
	metrics.RegisterComponent(metrics.ComponentManager, true, "running")
	defer metrics.UpdateComponent(metrics.ComponentTransport, false, "stopped")
	defer metrics.UpdateComponent(metrics.ComponentManager, false, "stopped")
	if n.store != nil {
		metrics.RegisterComponent(metrics.ComponentJournal, true, "open")
		defer metrics.UpdateComponent(metrics.ComponentJournal, false, "detached")
	}

	n.logger.Info().Int("peers", len(n.peers)).Msg("Node started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.conn.Serve(gctx, n.handle) })
	g.Go(func() error { return n.scheduler.Run(gctx) })
	g.Go(func() error { return n.reconciler.Run(gctx) })
	g.Go(func() error { return n.sendHeartbeats(gctx) })
	g.Go(func() error { return n.watchNotices(gctx) })

	err := g.Wait()
	n.logger.Info().Msg("Node stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Shutdown tells every peer that this component is going away: produced
// events are canceled toward their subscribers and subscriptions are
// canceled toward their providers. The repository is empty afterwards but
// the journal keeps the subscriptions for the next Resubscribe. Call it
// while Run is still serving so the cancels can go out.
func (n *Node) Shutdown(ctx context.Context) error {
	n.shuttingDown.Store(true)
	return n.manager.CancelEvents(ctx, true)
}

// Close releases resources the node created itself
func (n *Node) Close() error {
	if n.ownBroker {
		n.broker.Stop()
	}
	return n.conn.Close()
}
