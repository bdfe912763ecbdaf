package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/events"
	"github.com/cuemby/herald/pkg/manager"
	"github.com/cuemby/herald/pkg/metrics"
	"github.com/cuemby/herald/pkg/storage"
	"github.com/cuemby/herald/pkg/transport"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
)

// Subscribe asks provider for an event and journals the confirmed
// subscription
func (n *Node) Subscribe(ctx context.Context, provider types.Address, setup wire.EventSetup) (*event.Event, error) {
	e, err := n.manager.RequestEvent(ctx, provider, setup)
	if err != nil {
		return nil, err
	}
	n.journal(e, setup, nil)
	return e, nil
}

// Update changes the setup of a subscription. The provider may move it to
// another event id; the returned event carries the key it lives under now.
func (n *Node) Update(ctx context.Context, key event.Key, setup wire.EventSetup) (*event.Event, error) {
	e, err := n.manager.UpdateSubscription(ctx, key, setup)
	if err != nil {
		return nil, err
	}
	n.journal(e, setup, &key)
	return e, nil
}

// Cancel ends a subscription, or stops producing an event, by key
func (n *Node) Cancel(ctx context.Context, key event.Key) error {
	if err := n.manager.DeleteEvent(ctx, key); err != nil {
		return err
	}
	if n.store != nil && key.Provider != n.addr {
		if err := n.store.DeleteSubscription(key.String()); err != nil {
			n.logger.Warn().Err(err).Stringer("event", key).Msg("Failed to remove subscription from journal")
		}
	}
	return nil
}

// Query asks provider which events it produces
func (n *Node) Query(ctx context.Context, provider types.Address, q *wire.QueryEvents) (*wire.ReportEvents, error) {
	buf, err := wire.Marshal(provider, n.addr, q)
	if err != nil {
		return nil, err
	}

	header := wire.Header{Code: q.Code(), Destination: provider, Source: n.addr}
	pkt, err := n.conn.SendAndWait(ctx, buf, transport.ReplyTo(header, wire.CodeReportEvents))
	if err != nil {
		return nil, fmt.Errorf("query events at %s: %w", provider, err)
	}

	msg, err := pkt.Decode(n.registry)
	if err != nil {
		return nil, err
	}
	report, ok := msg.(*wire.ReportEvents)
	if !ok {
		return nil, fmt.Errorf("unexpected reply %s to query events", msg.Code())
	}
	return report, nil
}

// Fire triggers the produced change-based events of payloadType accepted by
// match. See scheduler.Scheduler.Trigger.
func (n *Node) Fire(ctx context.Context, payloadType wire.Code, match func(*event.Event) bool) (int, error) {
	return n.scheduler.Trigger(ctx, payloadType, match)
}

// Resubscribe requests every journaled subscription again. A reject drops
// it from the journal; a timeout keeps it for the next attempt. It returns
// the number of subscriptions restored.
func (n *Node) Resubscribe(ctx context.Context) (int, error) {
	if n.store == nil {
		return 0, nil
	}
	subs, err := n.store.ListSubscriptions()
	if err != nil {
		return 0, fmt.Errorf("failed to read journal: %w", err)
	}

	restored := 0
	for _, sub := range subs {
		oldKey := sub.EventKey()
		e, err := n.manager.RequestEvent(ctx, sub.Provider, sub.Setup)
		var reqErr *manager.RequestError
		switch {
		case err == nil:
			restored++
			n.journal(e, sub.Setup, &oldKey)
		case errors.As(err, &reqErr):
			n.logger.Info().Err(err).Stringer("event", oldKey).Msg("Journaled subscription rejected, dropping it")
			_ = n.store.DeleteSubscription(sub.Key())
		default:
			n.logger.Warn().Err(err).Stringer("event", oldKey).Msg("Failed to restore subscription")
		}
	}
	return restored, nil
}

// journal records a confirmed subscription. previous is the key it was
// journaled under before, if any; its creation time carries over.
func (n *Node) journal(e *event.Event, setup wire.EventSetup, previous *event.Key) {
	if n.store == nil {
		return
	}

	sub := &storage.Subscription{
		Provider: e.Provider,
		EventID:  e.ID,
		Setup:    setup.Clone(),
	}
	lookup := sub.Key()
	if previous != nil {
		lookup = previous.String()
	}
	if existing, err := n.store.GetSubscription(lookup); err == nil {
		sub.CreatedAt = existing.CreatedAt
	}
	if previous != nil && *previous != e.Key() {
		_ = n.store.DeleteSubscription(previous.String())
	}

	if err := n.store.PutSubscription(sub); err != nil {
		n.logger.Warn().Err(err).Stringer("event", e.Key()).Msg("Failed to journal subscription")
		metrics.UpdateComponent(metrics.ComponentJournal, false, err.Error())
		return
	}
	metrics.UpdateComponent(metrics.ComponentJournal, true, "open")
}

// watchNotices forgets per-event state once a subscription is gone, however
// it went: canceled, torn down by the provider or lost with its peer
func (n *Node) watchNotices(ctx context.Context) error {
	sub := n.broker.Subscribe()
	defer n.broker.Unsubscribe(sub)

	owner := n.addr.String()
	for {
		select {
		case notice, ok := <-sub:
			if !ok {
				return nil
			}
			if notice.Type != events.NoticeEventDeleted || notice.Metadata["provider"] == owner {
				continue
			}
			key := notice.Metadata["event"]

			n.mu.Lock()
			delete(n.lastSeq, key)
			n.mu.Unlock()

			if n.store != nil && !n.shuttingDown.Load() {
				if err := n.store.DeleteSubscription(key); err != nil {
					n.logger.Warn().Err(err).Str("event", key).Msg("Failed to remove subscription from journal")
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sendHeartbeats announces this component to the configured peers and
// asks every provider it subscribes to for a pulse. The answers keep quiet
// providers alive in the reconciler, and the queries do the same for this
// component on the provider side.
func (n *Node) sendHeartbeats(ctx context.Context) error {
	ticker := time.NewTicker(n.heartbeat)
	defer ticker.Stop()

	configured := types.NewAddressSet(n.peers...)
	for {
		for _, peer := range n.peers {
			_ = n.send(ctx, peer, &wire.ReportHeartbeatPulse{})
		}
		for _, provider := range n.providers() {
			if !configured.Has(provider) {
				_ = n.send(ctx, provider, &wire.QueryHeartbeatPulse{})
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// providers returns the distinct providers of the subscribed events
func (n *Node) providers() []types.Address {
	set := types.NewAddressSet()
	for _, e := range n.manager.SubscribedEvents() {
		set.Add(e.Provider)
	}
	return set.Sorted()
}
