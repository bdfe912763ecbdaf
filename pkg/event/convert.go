package event

import (
	"bytes"
	"math"

	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
)

// NegotiateRate picks the rate an event fires at from the requested values:
// the requested rate when given, never below the minimum, clamped to the
// wire range
func NegotiateRate(minimum, requested *float64) float64 {
	var rate float64
	switch {
	case requested != nil:
		rate = *requested
	case minimum != nil:
		rate = *minimum
	}
	if minimum != nil {
		rate = math.Max(rate, *minimum)
	}
	return math.Min(math.Max(rate, 0), wire.MaxPeriodicRate)
}

// FromCreateRequest builds the event described by req
func FromCreateRequest(req *wire.CreateEvent, id uint8, provider types.Address) *Event {
	e := &Event{
		ID:          id,
		Provider:    provider,
		Subscribers: types.NewAddressSet(),
	}
	e.CopyFrom(req)
	return e
}

// CopyFrom overwrites e's configuration with the setup of a create request.
// Identity, sequence and subscribers are left alone.
func (e *Event) CopyFrom(req *wire.CreateEvent) {
	e.applySetup(&req.EventSetup)
}

// CopyFromUpdate overwrites e's configuration with an update request
func (e *Event) CopyFromUpdate(req *wire.UpdateEvent) {
	e.applySetup(&req.EventSetup)
}

func (e *Event) applySetup(s *wire.EventSetup) {
	e.Kind = s.Kind
	e.PayloadType = s.PayloadType
	e.Conditions = s.Conditions.Clone()
	e.MinimumRate = clonePtr(s.MinimumRate)
	e.RequestedRate = clonePtr(s.RequestedRate)
	e.Rate = NegotiateRate(s.MinimumRate, s.RequestedRate)
	e.Template = nil
	if s.Template != nil {
		e.Template = wire.TemplateFromBytes(s.PayloadType, s.Template)
	}
}

// Setup returns e's configuration in request form
func (e *Event) Setup() wire.EventSetup {
	s := wire.EventSetup{
		PayloadType:   e.PayloadType,
		Kind:          e.Kind,
		MinimumRate:   clonePtr(e.MinimumRate),
		RequestedRate: clonePtr(e.RequestedRate),
	}
	if c := e.Conditions.Clone(); c != nil {
		s.Conditions = *c
	}
	if e.Template != nil {
		if raw, err := e.Template.Bytes(); err == nil {
			s.Template = bytes.Clone(raw)
		}
	}
	return s
}

// CopyTo writes e's configuration into req, keeping req's request id
func (e *Event) CopyTo(req *wire.CreateEvent) {
	req.EventSetup = e.Setup()
}

// ToUpdate returns an update request that would reproduce e
func (e *Event) ToUpdate(requestID uint8) *wire.UpdateEvent {
	return &wire.UpdateEvent{
		RequestID:  requestID,
		EventID:    e.ID,
		EventSetup: e.Setup(),
	}
}

// Report returns the entry describing e in a ReportEvents message
func (e *Event) Report() wire.EventReport {
	s := e.Setup()
	return wire.EventReport{
		PayloadType: e.PayloadType,
		Kind:        e.Kind,
		Conditions:  s.Conditions,
		EventID:     e.ID,
		Template:    s.Template,
	}
}

// FromReport rebuilds a read-only view of a remote event from a report entry
func FromReport(r wire.EventReport, provider types.Address) *Event {
	e := &Event{
		ID:          r.EventID,
		Kind:        r.Kind,
		PayloadType: r.PayloadType,
		Conditions:  r.Conditions.Clone(),
		Provider:    provider,
	}
	if r.Template != nil {
		e.Template = wire.TemplateFromBytes(r.PayloadType, r.Template)
	}
	return e
}

// MatchesQuery reports whether e passes the optional filters of q
func (e *Event) MatchesQuery(q *wire.QueryEvents) bool {
	if q.PayloadType != nil && *q.PayloadType != e.PayloadType {
		return false
	}
	if q.Kind != nil && *q.Kind != e.Kind {
		return false
	}
	if q.EventID != nil && *q.EventID != e.ID {
		return false
	}
	return true
}
