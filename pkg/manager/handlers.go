package manager

import (
	"errors"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/events"
	"github.com/cuemby/herald/pkg/metrics"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
)

// validateSetup checks a create or update setup against the payload catalog
func (tx *Tx) validateSetup(src types.Address, s *wire.EventSetup) error {
	if !tx.m.ownerSet {
		return reject(wire.ResponseConnectionRefused, s.PayloadType)
	}
	if src.HasWildcard() || src == tx.m.owner {
		return reject(wire.ResponseInvalidEventSetup, s.PayloadType)
	}

	p, ok := tx.m.payloads[s.PayloadType]
	if !ok {
		return reject(wire.ResponseMessageNotSupported, s.PayloadType)
	}
	if !s.Kind.Valid() {
		return reject(wire.ResponseInvalidEventSetup, s.PayloadType)
	}

	switch s.Kind {
	case types.EventKindPeriodic, types.EventKindPeriodicWithoutReplacement:
		if !p.Periodic {
			return reject(wire.ResponsePeriodicNotSupported, s.PayloadType)
		}
		if s.MinimumRate == nil && s.RequestedRate == nil {
			return reject(wire.ResponseInvalidEventSetup, s.PayloadType)
		}
	case types.EventKindEveryChange, types.EventKindFirstChange, types.EventKindFirstChangeBoundaries:
		if !p.ChangeBased {
			return reject(wire.ResponseChangeBasedNotSupported, s.PayloadType)
		}
	}

	for _, r := range []*float64{s.MinimumRate, s.RequestedRate} {
		if r != nil && (*r < 0 || *r > wire.MaxPeriodicRate) {
			return reject(wire.ResponseInvalidEventSetup, s.PayloadType)
		}
	}
	if s.Conditions.Boundary != nil && !s.Conditions.Boundary.Valid() {
		return reject(wire.ResponseInvalidEventSetup, s.PayloadType)
	}

	if p.Validate != nil {
		if err := p.Validate(s); err != nil {
			tx.m.logger.Debug().Err(err).Stringer("payload_type", s.PayloadType).Msg("Setup refused by payload validator")
			return reject(wire.ResponseInvalidEventSetup, s.PayloadType)
		}
	}
	return nil
}

// subscribe adds src to a produced event equivalent to req, creating the
// event when none matches
func (tx *Tx) subscribe(src types.Address, req *wire.CreateEvent) (*event.Event, error) {
	for _, e := range tx.Produced() {
		if e.MatchesCreateRequest(req) {
			if e.AddSubscriber(src) {
				tx.m.publish(events.NoticeSubscriberAdded, "subscriber added", e.Key(), "subscriber", src.String())
			}
			return e, nil
		}
	}

	id, err := tx.NextEventID(req.PayloadType)
	if err != nil {
		return nil, err
	}
	e := event.FromCreateRequest(req, id, tx.m.owner)
	e.AddSubscriber(src)
	if err := tx.AddEvent(e); err != nil {
		return nil, err
	}
	tx.m.publish(events.NoticeSubscriberAdded, "subscriber added", e.Key(), "subscriber", src.String())
	return e, nil
}

// CreateEvent serves a create request from src and returns the produced
// event src now receives
func (m *EventManager) CreateEvent(src types.Address, req *wire.CreateEvent) (*event.Event, error) {
	tx := m.Lock()
	defer tx.Unlock()

	if err := tx.validateSetup(src, &req.EventSetup); err != nil {
		return nil, err
	}
	e, err := tx.subscribe(src, req)
	if err != nil {
		return nil, err
	}
	return e.Clone(), nil
}

// UpdateEvent serves an update request from src. The event must be produced
// here under the request's id, payload type and kind, and src must receive
// it. An event src alone receives is changed in place; a shared event keeps
// its setup for the other subscribers and src is moved to an event matching
// the new setup.
func (m *EventManager) UpdateEvent(src types.Address, req *wire.UpdateEvent) (*event.Event, error) {
	tx := m.Lock()
	defer tx.Unlock()

	if err := tx.validateSetup(src, &req.EventSetup); err != nil {
		return nil, err
	}

	key := event.Key{ID: req.EventID, Kind: req.Kind, PayloadType: req.PayloadType, Provider: tx.m.owner}
	e, ok := tx.m.produced[key]
	if !ok || !e.HasSubscriber(src) {
		return nil, reject(wire.ResponseInvalidEventID, req.PayloadType)
	}

	if len(e.Subscribers) == 1 {
		e.CopyFromUpdate(req)
		tx.m.publish(events.NoticeEventUpdated, "event updated", key)
		return e.Clone(), nil
	}

	create := &wire.CreateEvent{RequestID: req.RequestID, EventSetup: req.EventSetup}
	if target := tx.findMatch(create); target == e {
		return e.Clone(), nil
	}
	tx.removeSubscriber(e, src)
	moved, err := tx.subscribe(src, create)
	if err != nil {
		// Keep src on its old event rather than dropping it.
		e.AddSubscriber(src)
		return nil, err
	}
	return moved.Clone(), nil
}

func (tx *Tx) findMatch(req *wire.CreateEvent) *event.Event {
	for _, e := range tx.Produced() {
		if e.MatchesCreateRequest(req) {
			return e
		}
	}
	return nil
}

// HandleCreateEvent answers a create request with a confirm or reject
func (m *EventManager) HandleCreateEvent(src types.Address, req *wire.CreateEvent) wire.Message {
	e, err := m.CreateEvent(src, req)
	if err != nil {
		return m.rejectReply("create", src, req.RequestID, req.PayloadType, err)
	}
	metrics.RequestsTotal.WithLabelValues("create", "confirmed").Inc()
	return &wire.ConfirmEventRequest{RequestID: req.RequestID, PayloadType: e.PayloadType, EventID: e.ID}
}

// HandleUpdateEvent answers an update request with a confirm or reject
func (m *EventManager) HandleUpdateEvent(src types.Address, req *wire.UpdateEvent) wire.Message {
	e, err := m.UpdateEvent(src, req)
	if err != nil {
		return m.rejectReply("update", src, req.RequestID, req.PayloadType, err)
	}
	metrics.RequestsTotal.WithLabelValues("update", "confirmed").Inc()
	return &wire.ConfirmEventRequest{RequestID: req.RequestID, PayloadType: e.PayloadType, EventID: e.ID}
}

// HandleCancelEvent serves a cancel request from src. A cancel carrying
// wire.TeardownRequestID comes from a provider tearing its event down: the
// subscriptions it names are dropped and no reply is due, so nil is
// returned. Any other cancel naming an event src receives from this
// component is confirmed, and the rest are rejected as invalid event setup.
func (m *EventManager) HandleCancelEvent(src types.Address, req *wire.CancelEvent) wire.Message {
	tx := m.Lock()
	defer tx.Unlock()

	if req.RequestID == wire.TeardownRequestID {
		dropped := tx.dropSubscriptions(src, req.PayloadType, req.EventID)
		if len(dropped) == 0 {
			m.logger.Debug().Stringer("peer", src).Msg("Teardown names no held subscription")
		}
		metrics.RequestsTotal.WithLabelValues("cancel", "provider").Inc()
		return nil
	}

	e, err := tx.CancelProducedEvent(src, req)
	if err == nil {
		metrics.RequestsTotal.WithLabelValues("cancel", "confirmed").Inc()
		return &wire.ConfirmEventRequest{RequestID: req.RequestID, PayloadType: e.PayloadType, EventID: e.ID}
	}

	metrics.RequestsTotal.WithLabelValues("cancel", "rejected").Inc()
	return &wire.RejectEventRequest{
		RequestID:    req.RequestID,
		ResponseCode: wire.ResponseInvalidEventSetup,
		PayloadType:  req.PayloadType,
	}
}

// HandleQueryEvents reports the produced events that pass the query filters
func (m *EventManager) HandleQueryEvents(q *wire.QueryEvents) *wire.ReportEvents {
	tx := m.Lock()
	defer tx.Unlock()

	report := &wire.ReportEvents{}
	for _, e := range tx.Produced() {
		if !e.MatchesQuery(q) {
			continue
		}
		if len(report.Events) == 255 {
			m.logger.Warn().Msg("Event report truncated at 255 entries")
			break
		}
		report.Events = append(report.Events, e.Report())
	}
	metrics.RequestsTotal.WithLabelValues("query", "reported").Inc()
	return report
}

func (m *EventManager) rejectReply(op string, src types.Address, requestID uint8, payloadType wire.Code, err error) wire.Message {
	code := ResponseCodeOf(err)
	rej := &wire.RejectEventRequest{RequestID: requestID, ResponseCode: code}

	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.PayloadType != nil {
		rej.PayloadType = reqErr.PayloadType
	} else {
		rej.PayloadType = &payloadType
	}

	metrics.RequestsTotal.WithLabelValues(op, "rejected").Inc()
	m.logger.Debug().Err(err).Str("op", op).Stringer("peer", src).Msg("Request rejected")
	return rej
}
