package wire

import (
	"bytes"

	"github.com/cuemby/herald/pkg/types"
)

// Presence-vector bits of the optional event setup fields
const (
	pvBoundary uint8 = 1 << iota
	pvLimitField
	pvLowerLimit
	pvUpperLimit
	pvState
	pvMinimumRate
	pvRequestedRate
	pvTemplate
)

// EventSetup is the configuration shared by CreateEvent and UpdateEvent.
// Pointer fields and a nil Template are absent on the wire.
type EventSetup struct {
	PayloadType   Code             `json:"payload_type" yaml:"payload_type"`
	Kind          types.EventKind  `json:"kind" yaml:"kind"`
	Conditions    types.Conditions `json:"conditions" yaml:"conditions"`
	MinimumRate   *float64         `json:"minimum_rate,omitempty" yaml:"minimum_rate,omitempty"`
	RequestedRate *float64         `json:"requested_rate,omitempty" yaml:"requested_rate,omitempty"`
	Template      []byte           `json:"template,omitempty" yaml:"template,omitempty"`
}

func (s *EventSetup) presence() uint8 {
	var pv uint8
	c := &s.Conditions
	if c.Boundary != nil {
		pv |= pvBoundary
	}
	if c.LimitField != nil {
		pv |= pvLimitField
	}
	if c.LowerLimit != nil {
		pv |= pvLowerLimit
	}
	if c.UpperLimit != nil {
		pv |= pvUpperLimit
	}
	if c.State != nil {
		pv |= pvState
	}
	if s.MinimumRate != nil {
		pv |= pvMinimumRate
	}
	if s.RequestedRate != nil {
		pv |= pvRequestedRate
	}
	if s.Template != nil {
		pv |= pvTemplate
	}
	return pv
}

func (s *EventSetup) writeOptional(w *writer) {
	c := &s.Conditions
	if c.Boundary != nil {
		w.u8(uint8(*c.Boundary))
	}
	if c.LimitField != nil {
		w.u8(*c.LimitField)
	}
	if c.LowerLimit != nil {
		w.f64(*c.LowerLimit)
	}
	if c.UpperLimit != nil {
		w.f64(*c.UpperLimit)
	}
	if c.State != nil {
		w.f64(*c.State)
	}
	if s.MinimumRate != nil {
		w.rate(*s.MinimumRate)
	}
	if s.RequestedRate != nil {
		w.rate(*s.RequestedRate)
	}
	if s.Template != nil {
		w.blob(s.Template)
	}
}

func (s *EventSetup) readOptional(r *reader, pv uint8) {
	c := &s.Conditions
	if pv&pvBoundary != 0 {
		c.Boundary = types.Ptr(types.BoundaryType(r.u8()))
	}
	if pv&pvLimitField != 0 {
		c.LimitField = types.Ptr(r.u8())
	}
	if pv&pvLowerLimit != 0 {
		c.LowerLimit = types.Ptr(r.f64())
	}
	if pv&pvUpperLimit != 0 {
		c.UpperLimit = types.Ptr(r.f64())
	}
	if pv&pvState != 0 {
		c.State = types.Ptr(r.f64())
	}
	if pv&pvMinimumRate != 0 {
		s.MinimumRate = types.Ptr(r.rate())
	}
	if pv&pvRequestedRate != 0 {
		s.RequestedRate = types.Ptr(r.rate())
	}
	if pv&pvTemplate != 0 {
		s.Template = r.blob()
		if s.Template == nil && r.err == nil {
			s.Template = []byte{}
		}
	}
}

// Clone returns a deep copy
func (s EventSetup) Clone() EventSetup {
	out := s
	if c := s.Conditions.Clone(); c != nil {
		out.Conditions = *c
	} else {
		out.Conditions = types.Conditions{}
	}
	if s.MinimumRate != nil {
		out.MinimumRate = types.Ptr(*s.MinimumRate)
	}
	if s.RequestedRate != nil {
		out.RequestedRate = types.Ptr(*s.RequestedRate)
	}
	if s.Template != nil {
		out.Template = bytes.Clone(s.Template)
		if out.Template == nil {
			out.Template = []byte{}
		}
	}
	return out
}
