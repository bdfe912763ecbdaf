package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/herald/pkg/wire"
)

var (
	// ErrUnreachable is returned when no route exists for a destination
	ErrUnreachable = errors.New("destination unreachable")
	// ErrQueueFull is returned when the receiver cannot accept more packets
	ErrQueueFull = errors.New("receive queue full")
	// ErrTimeout is returned when no reply arrives before the deadline
	ErrTimeout = errors.New("timed out waiting for reply")
	// ErrClosed is returned after the transport has been closed
	ErrClosed = errors.New("transport closed")
)

// Handler processes one inbound packet. Handlers run on the receive loop and
// must not wait for replies themselves.
type Handler func(ctx context.Context, pkt wire.Packet)

// Transport sends encoded packets. The destination is read from the packet
// header, so a caller can reuse one buffer for several destinations by
// patching it between calls. Implementations never retain packet.
type Transport interface {
	Send(ctx context.Context, packet []byte) error
	SendAndWait(ctx context.Context, packet []byte, match func(wire.Packet) bool) (wire.Packet, error)
}

// Conn is a Transport that also receives
type Conn interface {
	Transport

	// Serve delivers inbound packets to h until ctx is done or the
	// connection is closed
	Serve(ctx context.Context, h Handler) error
	Close() error
}

// ReplyTo matches a reply to a request packet: the reply travels in the
// opposite direction and carries one of the given codes
func ReplyTo(request wire.Header, codes ...wire.Code) func(wire.Packet) bool {
	return func(p wire.Packet) bool {
		if p.Source != request.Destination || p.Destination != request.Source {
			return false
		}
		for _, c := range codes {
			if p.Code == c {
				return true
			}
		}
		return false
	}
}

type waiter struct {
	match func(wire.Packet) bool
	ch    chan wire.Packet
}

// waiters tracks callers blocked in SendAndWait
type waiters struct {
	mu      sync.Mutex
	pending map[*waiter]struct{}
}

func (w *waiters) add(match func(wire.Packet) bool) *waiter {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == nil {
		w.pending = make(map[*waiter]struct{})
	}
	wt := &waiter{match: match, ch: make(chan wire.Packet, 1)}
	w.pending[wt] = struct{}{}
	return wt
}

func (w *waiters) remove(wt *waiter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, wt)
}

// offer hands pkt to the first waiter that matches it and reports whether
// one did. The waiter is removed so a reply is consumed once.
func (w *waiters) offer(pkt wire.Packet) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for wt := range w.pending {
		if wt.match(pkt) {
			delete(w.pending, wt)
			wt.ch <- pkt
			return true
		}
	}
	return false
}

// roundTrip registers a waiter, sends with send, and blocks for the reply
func (w *waiters) roundTrip(ctx context.Context, packet []byte, match func(wire.Packet) bool, send func(context.Context, []byte) error) (wire.Packet, error) {
	wt := w.add(match)
	defer w.remove(wt)

	if err := send(ctx, packet); err != nil {
		return wire.Packet{}, err
	}

	select {
	case pkt := <-wt.ch:
		return pkt, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return wire.Packet{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return wire.Packet{}, ctx.Err()
	}
}
