package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/events"
	"github.com/cuemby/herald/pkg/metrics"
	"github.com/cuemby/herald/pkg/transport"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
)

// cancelRequest builds the cancel a subscriber sends for e. The request id
// stays held until the caller releases it.
func (tx *Tx) cancelRequest(e *event.Event) (*PendingRequest, *wire.CancelEvent) {
	pr, err := tx.m.requestIDs.Acquire(wire.CodeCancelEvent, e.Provider, tx.m.timeout)
	if err != nil {
		tx.m.logger.Warn().Err(err).Stringer("event", e.Key()).Msg("Cannot cancel subscription remotely")
		return nil, nil
	}
	payloadType, id := e.PayloadType, e.ID
	return pr, &wire.CancelEvent{
		RequestID:   pr.ID,
		PayloadType: &payloadType,
		EventID:     &id,
	}
}

// requestIDOf extracts the request id a reply carries
func requestIDOf(msg wire.Message) (uint8, bool) {
	switch r := msg.(type) {
	case *wire.ConfirmEventRequest:
		return r.RequestID, true
	case *wire.RejectEventRequest:
		return r.RequestID, true
	default:
		return 0, false
	}
}

// roundTrip sends a lifecycle request to provider and waits, bounded by the
// request timeout, for the confirm or reject carrying the same request id
func (m *EventManager) roundTrip(ctx context.Context, provider types.Address, req wire.Message) (wire.Message, error) {
	if m.transport == nil {
		return nil, ErrNoTransport
	}

	owner, _ := m.Owner()
	buf, err := wire.Marshal(provider, owner, req)
	if err != nil {
		return nil, err
	}
	reqID, _ := requestIDOfRequest(req)

	replyTo := transport.ReplyTo(wire.Header{Code: req.Code(), Destination: provider, Source: owner},
		wire.CodeConfirmEventRequest, wire.CodeRejectEventRequest)
	match := func(p wire.Packet) bool {
		if !replyTo(p) {
			return false
		}
		msg, err := p.Decode(m.registry)
		if err != nil {
			return false
		}
		id, ok := requestIDOf(msg)
		return ok && id == reqID
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	pkt, err := m.transport.SendAndWait(ctx, buf, match)
	if err != nil {
		return nil, err
	}
	return pkt.Decode(m.registry)
}

func requestIDOfRequest(msg wire.Message) (uint8, bool) {
	switch r := msg.(type) {
	case *wire.CreateEvent:
		return r.RequestID, true
	case *wire.UpdateEvent:
		return r.RequestID, true
	case *wire.CancelEvent:
		return r.RequestID, true
	default:
		return 0, false
	}
}

// RequestEvent asks provider to notify this component under setup. On
// confirm the subscription is stored and returned. A reject returns a
// *RequestError; a timeout returns an error and stores nothing.
func (m *EventManager) RequestEvent(ctx context.Context, provider types.Address, setup wire.EventSetup) (*event.Event, error) {
	owner, ok := m.Owner()
	if !ok {
		return nil, ErrOwnerNotSet
	}
	if provider.HasWildcard() || provider == owner {
		return nil, fmt.Errorf("cannot subscribe to %s", provider)
	}

	pr, err := m.requestIDs.Acquire(wire.CodeCreateEvent, provider, m.timeout)
	if err != nil {
		return nil, err
	}
	defer m.requestIDs.Release(pr)

	req := &wire.CreateEvent{RequestID: pr.ID, EventSetup: setup.Clone()}
	reply, err := m.roundTrip(ctx, provider, req)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("create", "timeout").Inc()
		return nil, fmt.Errorf("create event at %s: %w", provider, err)
	}

	switch r := reply.(type) {
	case *wire.RejectEventRequest:
		metrics.RequestsTotal.WithLabelValues("create", "rejected").Inc()
		m.publishRequest(events.NoticeSubscriptionRejected, provider, setup.PayloadType, r.ResponseCode.String())
		return nil, &RequestError{Code: r.ResponseCode, PayloadType: r.PayloadType}
	case *wire.ConfirmEventRequest:
		metrics.RequestsTotal.WithLabelValues("create", "confirmed").Inc()
		e := event.FromCreateRequest(req, r.EventID, provider)
		e.Subscribers = nil

		tx := m.Lock()
		defer tx.Unlock()
		if existing, ok := tx.Get(e.Key()); ok {
			// The provider folded this request into a subscription we
			// already hold.
			return existing.Clone(), nil
		}
		if err := tx.AddEvent(e); err != nil {
			return nil, err
		}
		m.publish(events.NoticeSubscriptionConfirmed, "subscription confirmed", e.Key())
		return e.Clone(), nil
	default:
		return nil, fmt.Errorf("unexpected reply %s to create event", reply.Code())
	}
}

// UpdateSubscription asks the provider of a subscribed event to change its
// setup. The provider may answer with a different event id, in which case
// the subscription moves to the new key. When the provider does not answer
// in time the local subscription is updated anyway and kept under its key.
func (m *EventManager) UpdateSubscription(ctx context.Context, key event.Key, setup wire.EventSetup) (*event.Event, error) {
	tx := m.Lock()
	e, ok := tx.m.subscribed[key]
	var req *wire.UpdateEvent
	if ok {
		req = e.ToUpdate(0)
	}
	tx.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	pr, err := m.requestIDs.Acquire(wire.CodeUpdateEvent, key.Provider, m.timeout)
	if err != nil {
		return nil, err
	}
	defer m.requestIDs.Release(pr)

	// The payload type and kind name the event and cannot change.
	payloadType, kind := req.PayloadType, req.Kind
	req.RequestID = pr.ID
	req.EventSetup = setup.Clone()
	req.PayloadType, req.Kind = payloadType, kind
	newID := key.ID

	reply, err := m.roundTrip(ctx, key.Provider, req)
	switch r := reply.(type) {
	case nil:
		if errors.Is(err, ErrNoTransport) {
			return nil, err
		}
		metrics.RequestsTotal.WithLabelValues("update", "timeout").Inc()
		m.logger.Warn().Err(err).Stringer("event", key).Msg("Update not confirmed, applying locally")
	case *wire.RejectEventRequest:
		metrics.RequestsTotal.WithLabelValues("update", "rejected").Inc()
		return nil, &RequestError{Code: r.ResponseCode, PayloadType: r.PayloadType}
	case *wire.ConfirmEventRequest:
		metrics.RequestsTotal.WithLabelValues("update", "confirmed").Inc()
		newID = r.EventID
	}

	tx = m.Lock()
	defer tx.Unlock()
	e, ok = tx.m.subscribed[key]
	if !ok {
		// Lost while the request was in flight.
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if _, err := tx.DeleteEvent(key); err != nil {
		return nil, err
	}
	e.ID = newID
	e.CopyFromUpdate(req)
	if existing, ok := tx.Get(e.Key()); ok {
		return existing.Clone(), nil
	}
	if err := tx.AddEvent(e); err != nil {
		return nil, err
	}
	m.publish(events.NoticeEventUpdated, "subscription updated", e.Key())
	return e.Clone(), nil
}

// dropSubscriptions removes the subscribed events from provider that a
// teardown cancel names. Absent fields match anything.
func (tx *Tx) dropSubscriptions(provider types.Address, payloadType *wire.Code, id *uint8) []event.Key {
	var dropped []event.Key
	for _, e := range tx.Subscribed() {
		if e.Provider != provider {
			continue
		}
		if payloadType != nil && e.PayloadType != *payloadType {
			continue
		}
		if id != nil && e.ID != *id {
			continue
		}
		key := e.Key()
		if _, err := tx.DeleteEvent(key); err == nil {
			dropped = append(dropped, key)
			tx.m.publish(events.NoticeSubscriptionCanceled, "provider canceled subscription", key)
		}
	}
	return dropped
}

func (m *EventManager) publishRequest(t events.NoticeType, provider types.Address, payloadType wire.Code, reason string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Notice{
		Type:    t,
		Message: reason,
		Metadata: map[string]string{
			"provider":     provider.String(),
			"payload_type": payloadType.String(),
		},
	})
}
