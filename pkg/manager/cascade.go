package manager

import (
	"context"
	"fmt"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/events"
	"github.com/cuemby/herald/pkg/metrics"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
)

// CascadeResult summarizes a topology-loss cascade
type CascadeResult struct {
	// SubscriptionsLost are the subscribed events whose provider went away
	SubscriptionsLost []event.Key
	// SubscribersRemoved counts subscriber entries dropped from produced
	// events
	SubscribersRemoved int
	// ProducedDeleted are produced events left without subscribers
	ProducedDeleted []event.Key
}

// DeleteComponent drops every event involving addr. A wildcard level in
// addr matches any value at that level.
func (m *EventManager) DeleteComponent(addr types.Address) CascadeResult {
	return m.cascade("component", addr.String(), func(a types.Address) bool { return a.Matches(addr) })
}

// DeleteComponentsFromNode drops every event involving a component of node
func (m *EventManager) DeleteComponentsFromNode(subsystem, node uint8) CascadeResult {
	return m.cascade("node", fmt.Sprintf("%d.%d", subsystem, node), func(a types.Address) bool {
		return a.InNode(subsystem, node)
	})
}

// DeleteComponentsFromSubsystem drops every event involving a component of
// subsystem
func (m *EventManager) DeleteComponentsFromSubsystem(subsystem uint8) CascadeResult {
	return m.cascade("subsystem", fmt.Sprintf("%d", subsystem), func(a types.Address) bool {
		return a.InSubsystem(subsystem)
	})
}

// cascade applies both passes under one lock acquisition
func (m *EventManager) cascade(scope, target string, lost func(types.Address) bool) CascadeResult {
	tx := m.Lock()
	defer tx.Unlock()

	var res CascadeResult

	for _, e := range tx.Subscribed() {
		if lost(e.Provider) {
			key := e.Key()
			if _, err := tx.DeleteEvent(key); err == nil {
				res.SubscriptionsLost = append(res.SubscriptionsLost, key)
			}
		}
	}

	for _, e := range tx.Produced() {
		key := e.Key()
		removed := e.Subscribers.RemoveFunc(func(sub types.Address) bool {
			if !lost(sub) {
				return false
			}
			m.publish(events.NoticeSubscriberRemoved, "subscriber lost", key, "subscriber", sub.String())
			return true
		})
		if removed == 0 {
			continue
		}
		res.SubscribersRemoved += removed
		if len(e.Subscribers) == 0 {
			if _, err := tx.DeleteEvent(key); err == nil {
				res.ProducedDeleted = append(res.ProducedDeleted, key)
			}
		}
	}

	metrics.CascadesTotal.WithLabelValues(scope).Inc()
	m.logger.Info().
		Str("scope", scope).
		Str("target", target).
		Int("subscriptions_lost", len(res.SubscriptionsLost)).
		Int("subscribers_removed", res.SubscribersRemoved).
		Int("produced_deleted", len(res.ProducedDeleted)).
		Msg("Cascading delete")
	return res
}

// CancelProducedEvent removes caller from the produced event a cancel
// request designates and returns that event. Precedence: payload type and
// id, payload type alone, id alone, then any event caller receives. At most
// one event is affected. The event is deleted when caller was its last
// subscriber.
func (m *EventManager) CancelProducedEvent(caller types.Address, req *wire.CancelEvent) (*event.Event, error) {
	tx := m.Lock()
	defer tx.Unlock()
	return tx.CancelProducedEvent(caller, req)
}

// CancelProducedEvent is the locked form of EventManager.CancelProducedEvent
func (tx *Tx) CancelProducedEvent(caller types.Address, req *wire.CancelEvent) (*event.Event, error) {
	var match func(e *event.Event) bool
	switch {
	case req.PayloadType != nil && req.EventID != nil:
		match = func(e *event.Event) bool {
			return e.PayloadType == *req.PayloadType && e.ID == *req.EventID
		}
	case req.PayloadType != nil:
		match = func(e *event.Event) bool { return e.PayloadType == *req.PayloadType }
	case req.EventID != nil:
		match = func(e *event.Event) bool { return e.ID == *req.EventID }
	default:
		match = func(e *event.Event) bool { return true }
	}

	for _, e := range tx.Produced() {
		if !e.HasSubscriber(caller) || !match(e) {
			continue
		}
		tx.removeSubscriber(e, caller)
		return e, nil
	}
	return nil, fmt.Errorf("%w: cancel from %s", ErrNoMatch, caller)
}

// CancelEvents tears down both indexes. With notify set, providers are told
// to drop this component and subscribers are told their events are gone.
func (m *EventManager) CancelEvents(ctx context.Context, notify bool) error {
	errSubs := m.CancelEventSubscriptions(ctx, notify)
	errProd := m.CancelProducedEvents(ctx, notify)
	if errSubs != nil {
		return errSubs
	}
	return errProd
}

// CancelEventSubscriptions removes every subscribed event. With notify set,
// each provider is sent a cancel request; replies are not awaited.
func (m *EventManager) CancelEventSubscriptions(ctx context.Context, notify bool) error {
	tx := m.Lock()
	var packets [][]byte
	var held []*PendingRequest
	for _, e := range tx.Subscribed() {
		key := e.Key()
		_, _ = tx.DeleteEvent(key)
		if !notify || m.transport == nil {
			continue
		}
		pr, req := tx.cancelRequest(e)
		if pr == nil {
			continue
		}
		held = append(held, pr)
		buf, err := wire.Marshal(key.Provider, m.owner, req)
		if err != nil {
			m.logger.Warn().Err(err).Stringer("event", key).Msg("Failed to encode cancel")
			continue
		}
		packets = append(packets, buf)
	}
	tx.Unlock()

	defer func() {
		for _, pr := range held {
			m.requestIDs.Release(pr)
		}
	}()
	return m.sendAll(ctx, packets)
}

// CancelProducedEvents removes every produced event. With notify set, each
// subscriber is sent a cancel naming the event it loses.
func (m *EventManager) CancelProducedEvents(ctx context.Context, notify bool) error {
	tx := m.Lock()
	var packets [][]byte
	for _, e := range tx.Produced() {
		key := e.Key()
		_, _ = tx.DeleteEvent(key)
		if !notify || m.transport == nil {
			continue
		}
		req := &wire.CancelEvent{RequestID: wire.TeardownRequestID, PayloadType: &e.PayloadType, EventID: &e.ID}
		for _, sub := range e.Subscribers.Sorted() {
			buf, err := wire.Marshal(sub, m.owner, req)
			if err != nil {
				m.logger.Warn().Err(err).Stringer("event", key).Msg("Failed to encode cancel")
				continue
			}
			packets = append(packets, buf)
		}
	}
	tx.Unlock()

	return m.sendAll(ctx, packets)
}

// sendAll sends every packet, logging failures. It returns the first error.
func (m *EventManager) sendAll(ctx context.Context, packets [][]byte) error {
	var first error
	for _, buf := range packets {
		if err := m.transport.Send(ctx, buf); err != nil {
			dst, _ := wire.PeekDestination(buf)
			m.logger.Warn().Err(err).Stringer("peer", dst).Msg("Failed to send cancel")
			if first == nil {
				first = err
			}
		}
	}
	return first
}
