package event

import (
	"bytes"
	"math"
	"time"

	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
)

// Tolerance is the absolute difference under which two numeric setup
// values (limits, state, periodic rates) are considered equal
const Tolerance = 0.1

// Event is a single notification record: its trigger configuration, the
// template query whose response is the payload, and who receives it.
//
// A produced event (Provider is the local component) always has at least
// one subscriber while it is stored. A subscribed event has no subscriber
// set; the local component is its only subscriber.
type Event struct {
	ID       uint8
	Sequence uint8
	Kind     types.EventKind

	// MinimumRate and RequestedRate are kept as requested so a later
	// request can be compared field by field. Rate is the negotiated rate
	// the event fires at.
	MinimumRate   *float64
	RequestedRate *float64
	Rate          float64
	LastFired     time.Time

	Conditions  *types.Conditions
	PayloadType wire.Code
	Template    *wire.Template

	Provider    types.Address
	Subscribers types.AddressSet
}

// Key returns the index key of e
func (e *Event) Key() Key {
	return Key{
		ID:          e.ID,
		Kind:        e.Kind,
		PayloadType: e.PayloadType,
		Provider:    e.Provider,
	}
}

// IsPeriodic reports whether e fires on a timer
func (e *Event) IsPeriodic() bool {
	return e.Kind.IsPeriodic()
}

// Period returns the interval between firings, or zero when e has no rate
func (e *Event) Period() time.Duration {
	if e.Rate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / e.Rate)
}

// Due reports whether a periodic event should fire at now
func (e *Event) Due(now time.Time) bool {
	period := e.Period()
	if period == 0 {
		return false
	}
	return e.LastFired.IsZero() || now.Sub(e.LastFired) >= period
}

// AddSubscriber adds addr and reports whether it was new
func (e *Event) AddSubscriber(addr types.Address) bool {
	if e.Subscribers == nil {
		e.Subscribers = types.NewAddressSet()
	}
	return e.Subscribers.Add(addr)
}

// RemoveSubscriber removes addr and reports whether it was present
func (e *Event) RemoveSubscriber(addr types.Address) bool {
	return e.Subscribers.Remove(addr)
}

// HasSubscriber reports whether addr receives e
func (e *Event) HasSubscriber(addr types.Address) bool {
	return e.Subscribers.Has(addr)
}

// MatchesCreateRequest reports whether e already satisfies req, so the
// requester can be added to e's subscribers instead of creating a new event.
//
// Each optional field is checked on its own: presence must agree, then the
// values must agree. Numbers compare within Tolerance, the template compares
// byte for byte, and the minimum rate only requires e.Rate to reach it,
// also within Tolerance.
func (e *Event) MatchesCreateRequest(req *wire.CreateEvent) bool {
	if e.Kind != req.Kind || e.PayloadType != req.PayloadType {
		return false
	}

	var c types.Conditions
	if e.Conditions != nil {
		c = *e.Conditions
	}
	rc := &req.Conditions

	if (c.Boundary == nil) != (rc.Boundary == nil) {
		return false
	}
	if c.Boundary != nil && *c.Boundary != *rc.Boundary {
		return false
	}

	if (c.LimitField == nil) != (rc.LimitField == nil) {
		return false
	}
	if c.LimitField != nil && *c.LimitField != *rc.LimitField {
		return false
	}

	if !floatFieldMatches(c.LowerLimit, rc.LowerLimit) {
		return false
	}
	if !floatFieldMatches(c.UpperLimit, rc.UpperLimit) {
		return false
	}
	if !floatFieldMatches(c.State, rc.State) {
		return false
	}

	if (e.MinimumRate == nil) != (req.MinimumRate == nil) {
		return false
	}
	if req.MinimumRate != nil && e.Rate+Tolerance < *req.MinimumRate {
		return false
	}

	if !floatFieldMatches(e.RequestedRate, req.RequestedRate) {
		return false
	}

	if (e.Template == nil) != (req.Template == nil) {
		return false
	}
	if e.Template != nil {
		raw, err := e.Template.Bytes()
		if err != nil || !bytes.Equal(raw, req.Template) {
			return false
		}
	}

	return true
}

func floatFieldMatches(a, b *float64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || math.Abs(*a-*b) <= Tolerance
}

// Clone returns a deep copy that shares nothing with e
func (e *Event) Clone() *Event {
	out := *e
	out.MinimumRate = clonePtr(e.MinimumRate)
	out.RequestedRate = clonePtr(e.RequestedRate)
	out.Conditions = e.Conditions.Clone()
	out.Template = e.Template.Clone()
	if e.Subscribers != nil {
		out.Subscribers = e.Subscribers.Clone()
	}
	return &out
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
