package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/cuemby/herald/pkg/log"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const maxDatagram = 65535

// UDPConfig holds configuration for a UDP transport
type UDPConfig struct {
	// Listen is the local host:port to bind
	Listen string
	// SendRate limits outbound packets per second. Zero disables limiting.
	SendRate float64
	// SendBurst is the number of packets allowed above SendRate at once
	SendBurst int
}

// UDP carries packets as datagrams. Component addresses are mapped to
// network endpoints through a peer table that is seeded from configuration
// and learned from the source of inbound packets.
type UDP struct {
	conn    *net.UDPConn
	limiter *rate.Limiter
	waiters waiters
	logger  zerolog.Logger

	mu    sync.RWMutex
	peers map[types.Address]*net.UDPAddr

	closeOnce sync.Once
}

var _ Conn = (*UDP)(nil)

// ListenUDP binds a UDP transport
func ListenUDP(cfg UDPConfig) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve listen address: %v", err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %v", cfg.Listen, err)
	}

	limit := rate.Inf
	if cfg.SendRate > 0 {
		limit = rate.Limit(cfg.SendRate)
	}
	burst := cfg.SendBurst
	if burst <= 0 {
		burst = 1
	}

	return &UDP{
		conn:    conn,
		limiter: rate.NewLimiter(limit, burst),
		logger:  log.WithComponent("transport"),
		peers:   make(map[types.Address]*net.UDPAddr),
	}, nil
}

// LocalAddr returns the bound network address
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// AddPeer maps a component address to a network endpoint
func (u *UDP) AddPeer(addr types.Address, endpoint string) error {
	if addr.HasWildcard() {
		return fmt.Errorf("peer address %s must not contain wildcards", addr)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return fmt.Errorf("failed to resolve peer %s endpoint %q: %v", addr, endpoint, err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.peers[addr] = udpAddr
	return nil
}

// RemovePeer forgets the endpoint of addr
func (u *UDP) RemovePeer(addr types.Address) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.peers, addr)
}

// Peers returns the component addresses with a known endpoint
func (u *UDP) Peers() []types.Address {
	u.mu.RLock()
	defer u.mu.RUnlock()

	set := types.NewAddressSet()
	for addr := range u.peers {
		set.Add(addr)
	}
	return set.Sorted()
}

// Endpoint returns the network endpoint known for addr
func (u *UDP) Endpoint(addr types.Address) (string, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	a, ok := u.peers[addr]
	if !ok {
		return "", false
	}
	return a.String(), true
}

func (u *UDP) resolve(dst types.Address) []*net.UDPAddr {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if !dst.HasWildcard() {
		if a, ok := u.peers[dst]; ok {
			return []*net.UDPAddr{a}
		}
		return nil
	}

	var out []*net.UDPAddr
	for addr, a := range u.peers {
		if addr.Matches(dst) {
			out = append(out, a)
		}
	}
	return out
}

// Send writes packet to the endpoint of its destination, or to every known
// peer the destination matches when it contains wildcards
func (u *UDP) Send(ctx context.Context, packet []byte) error {
	dst, err := wire.PeekDestination(packet)
	if err != nil {
		return err
	}

	targets := u.resolve(dst)
	if len(targets) == 0 {
		return fmt.Errorf("%w: no endpoint for %s", ErrUnreachable, dst)
	}

	for _, t := range targets {
		if err := u.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send to %s: %w", dst, err)
		}
		if _, err := u.conn.WriteToUDP(packet, t); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return ErrClosed
			}
			return fmt.Errorf("failed to write to %s (%s): %w", dst, t, err)
		}
	}
	return nil
}

// SendAndWait sends packet and waits for the first inbound packet accepted
// by match
func (u *UDP) SendAndWait(ctx context.Context, packet []byte, match func(wire.Packet) bool) (wire.Packet, error) {
	return u.waiters.roundTrip(ctx, packet, match, u.Send)
}

// Serve reads datagrams and delivers them to h until ctx is done or the
// transport is closed
func (u *UDP) Serve(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = u.Close() })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrClosed
			}
			u.logger.Warn().Err(err).Msg("UDP read failed")
			continue
		}

		pkt, err := wire.Unmarshal(bytes.Clone(buf[:n]))
		if err != nil {
			u.logger.Warn().Err(err).Str("from", from.String()).Msg("Dropping malformed packet")
			continue
		}

		u.learn(pkt.Source, from)
		if u.waiters.offer(pkt) {
			continue
		}
		h(ctx, pkt)
	}
}

// learn records where a component was last heard from
func (u *UDP) learn(addr types.Address, from *net.UDPAddr) {
	if addr.HasWildcard() {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if cur, ok := u.peers[addr]; ok && cur.IP.Equal(from.IP) && cur.Port == from.Port {
		return
	}
	u.peers[addr] = from
	u.logger.Debug().Stringer("peer", addr).Str("endpoint", from.String()).Msg("Learned peer endpoint")
}

// Close releases the socket
func (u *UDP) Close() error {
	var err error
	u.closeOnce.Do(func() { err = u.conn.Close() })
	return err
}
