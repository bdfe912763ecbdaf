package transport

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/herald/pkg/log"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
	"github.com/rs/zerolog"
)

const memoryQueueSize = 256

// Network is an in-process packet switch connecting Endpoints by address.
// It backs tests and single-process deployments.
type Network struct {
	mu        sync.RWMutex
	endpoints map[types.Address]*Endpoint
}

// NewNetwork creates an empty network
func NewNetwork() *Network {
	return &Network{endpoints: make(map[types.Address]*Endpoint)}
}

// Attach connects a new endpoint at addr, replacing any previous one
func (n *Network) Attach(addr types.Address) *Endpoint {
	ep := &Endpoint{
		network: n,
		addr:    addr,
		inbox:   make(chan []byte, memoryQueueSize),
		done:    make(chan struct{}),
		logger:  log.WithPeer("transport", addr),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if old, ok := n.endpoints[addr]; ok {
		old.closeLocked()
	}
	n.endpoints[addr] = ep
	return ep
}

// Detach disconnects the endpoint at addr. Later sends to it fail with
// ErrUnreachable.
func (n *Network) Detach(addr types.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ep, ok := n.endpoints[addr]; ok {
		ep.closeLocked()
		delete(n.endpoints, addr)
	}
}

// route returns the endpoints a destination reaches, excluding src
func (n *Network) route(dst, src types.Address) []*Endpoint {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !dst.HasWildcard() {
		if ep, ok := n.endpoints[dst]; ok {
			return []*Endpoint{ep}
		}
		return nil
	}

	var out []*Endpoint
	for addr, ep := range n.endpoints {
		if addr != src && addr.Matches(dst) {
			out = append(out, ep)
		}
	}
	return out
}

// Endpoint is one component's attachment to a Network
type Endpoint struct {
	network *Network
	addr    types.Address
	inbox   chan []byte
	waiters waiters
	logger  zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

var _ Conn = (*Endpoint)(nil)

// Address returns the address the endpoint is attached at
func (e *Endpoint) Address() types.Address {
	return e.addr
}

// Send copies packet into the inbox of every endpoint its destination
// reaches
func (e *Endpoint) Send(ctx context.Context, packet []byte) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}

	dst, err := wire.PeekDestination(packet)
	if err != nil {
		return err
	}

	targets := e.network.route(dst, e.addr)
	if len(targets) == 0 {
		return fmt.Errorf("%w: %s", ErrUnreachable, dst)
	}

	for _, t := range targets {
		if err := t.deliver(bytes.Clone(packet)); err != nil {
			return fmt.Errorf("failed to deliver to %s: %w", t.addr, err)
		}
	}
	return nil
}

// SendAndWait sends packet and waits for the first inbound packet accepted
// by match
func (e *Endpoint) SendAndWait(ctx context.Context, packet []byte, match func(wire.Packet) bool) (wire.Packet, error) {
	return e.waiters.roundTrip(ctx, packet, match, e.Send)
}

func (e *Endpoint) deliver(buf []byte) error {
	select {
	case <-e.done:
		return ErrUnreachable
	default:
	}

	select {
	case e.inbox <- buf:
		return nil
	default:
		return ErrQueueFull
	}
}

// Serve delivers queued packets to h until ctx is done or the endpoint is
// closed
func (e *Endpoint) Serve(ctx context.Context, h Handler) error {
	for {
		select {
		case buf := <-e.inbox:
			pkt, err := wire.Unmarshal(buf)
			if err != nil {
				e.logger.Warn().Err(err).Msg("Dropping malformed packet")
				continue
			}
			if e.waiters.offer(pkt) {
				continue
			}
			h(ctx, pkt)
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return ErrClosed
		}
	}
}

// Close detaches the endpoint from its network
func (e *Endpoint) Close() error {
	e.network.mu.Lock()
	defer e.network.mu.Unlock()
	if e.network.endpoints[e.addr] == e {
		delete(e.network.endpoints, e.addr)
	}
	e.closeLocked()
	return nil
}

func (e *Endpoint) closeLocked() {
	e.closeOnce.Do(func() { close(e.done) })
}
