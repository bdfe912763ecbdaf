package wire

import (
	"fmt"

	"github.com/cuemby/herald/pkg/types"
)

// CreateEvent asks a provider to start notifying the sender
type CreateEvent struct {
	RequestID uint8
	EventSetup
}

func (m *CreateEvent) Code() Code { return CodeCreateEvent }

func (m *CreateEvent) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u8(m.presence())
	w.u8(m.RequestID)
	w.u16(uint16(m.PayloadType))
	w.u8(uint8(m.Kind))
	m.writeOptional(w)
	return w.buf, nil
}

func (m *CreateEvent) UnmarshalBinary(data []byte) error {
	*m = CreateEvent{}
	r := newReader(data)
	pv := r.u8()
	m.RequestID = r.u8()
	m.PayloadType = Code(r.u16())
	m.Kind = types.EventKind(r.u8())
	m.readOptional(r, pv)
	return r.finish()
}

// UpdateEvent changes the setup of an event the sender already subscribes to
type UpdateEvent struct {
	RequestID uint8
	EventID   uint8
	EventSetup
}

func (m *UpdateEvent) Code() Code { return CodeUpdateEvent }

func (m *UpdateEvent) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u8(m.presence())
	w.u8(m.RequestID)
	w.u8(m.EventID)
	w.u16(uint16(m.PayloadType))
	w.u8(uint8(m.Kind))
	m.writeOptional(w)
	return w.buf, nil
}

func (m *UpdateEvent) UnmarshalBinary(data []byte) error {
	*m = UpdateEvent{}
	r := newReader(data)
	pv := r.u8()
	m.RequestID = r.u8()
	m.EventID = r.u8()
	m.PayloadType = Code(r.u16())
	m.Kind = types.EventKind(r.u8())
	m.readOptional(r, pv)
	return r.finish()
}

const (
	pvCancelPayloadType uint8 = 1 << iota
	pvCancelEventID
)

// TeardownRequestID is the request id of a CancelEvent sent by a provider
// tearing down one of its own events. Subscriber requests never use it.
const TeardownRequestID uint8 = 255

// CancelEvent removes the sender from one or all of a provider's events.
// It is also sent by a provider tearing down its events, carrying
// TeardownRequestID.
type CancelEvent struct {
	RequestID   uint8
	PayloadType *Code
	EventID     *uint8
}

func (m *CancelEvent) Code() Code { return CodeCancelEvent }

func (m *CancelEvent) MarshalBinary() ([]byte, error) {
	var pv uint8
	if m.PayloadType != nil {
		pv |= pvCancelPayloadType
	}
	if m.EventID != nil {
		pv |= pvCancelEventID
	}

	w := &writer{}
	w.u8(pv)
	w.u8(m.RequestID)
	if m.PayloadType != nil {
		w.u16(uint16(*m.PayloadType))
	}
	if m.EventID != nil {
		w.u8(*m.EventID)
	}
	return w.buf, nil
}

func (m *CancelEvent) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	pv := r.u8()
	m.RequestID = r.u8()
	m.PayloadType, m.EventID = nil, nil
	if pv&pvCancelPayloadType != 0 {
		m.PayloadType = types.Ptr(Code(r.u16()))
	}
	if pv&pvCancelEventID != 0 {
		m.EventID = types.Ptr(r.u8())
	}
	return r.finish()
}

// ConfirmEventRequest accepts a create, update or cancel request
type ConfirmEventRequest struct {
	RequestID   uint8
	PayloadType Code
	EventID     uint8
}

func (m *ConfirmEventRequest) Code() Code { return CodeConfirmEventRequest }

func (m *ConfirmEventRequest) MarshalBinary() ([]byte, error) {
	w := &writer{}
	w.u8(m.RequestID)
	w.u16(uint16(m.PayloadType))
	w.u8(m.EventID)
	return w.buf, nil
}

func (m *ConfirmEventRequest) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	m.RequestID = r.u8()
	m.PayloadType = Code(r.u16())
	m.EventID = r.u8()
	return r.finish()
}

// RejectEventRequest refuses a create, update or cancel request
type RejectEventRequest struct {
	RequestID    uint8
	ResponseCode ResponseCode
	PayloadType  *Code
}

func (m *RejectEventRequest) Code() Code { return CodeRejectEventRequest }

func (m *RejectEventRequest) MarshalBinary() ([]byte, error) {
	var pv uint8
	if m.PayloadType != nil {
		pv = 1
	}
	w := &writer{}
	w.u8(pv)
	w.u8(m.RequestID)
	w.u8(uint8(m.ResponseCode))
	if m.PayloadType != nil {
		w.u16(uint16(*m.PayloadType))
	}
	return w.buf, nil
}

func (m *RejectEventRequest) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	pv := r.u8()
	m.RequestID = r.u8()
	m.ResponseCode = ResponseCode(r.u8())
	m.PayloadType = nil
	if pv&1 != 0 {
		m.PayloadType = types.Ptr(Code(r.u16()))
	}
	return r.finish()
}

// EventMessage is the deliver envelope. PayloadType names the event's
// namespace; Payload holds the reported message in embedded form.
type EventMessage struct {
	EventID     uint8
	PayloadType Code
	Sequence    uint8
	Payload     []byte
}

func (m *EventMessage) Code() Code { return CodeEvent }

func (m *EventMessage) MarshalBinary() ([]byte, error) {
	w := &writer{buf: make([]byte, 0, 8+len(m.Payload))}
	w.u8(m.EventID)
	w.u16(uint16(m.PayloadType))
	w.u8(m.Sequence)
	w.blob(m.Payload)
	return w.buf, nil
}

func (m *EventMessage) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	m.EventID = r.u8()
	m.PayloadType = Code(r.u16())
	m.Sequence = r.u8()
	m.Payload = r.blob()
	return r.finish()
}

const (
	pvQueryPayloadType uint8 = 1 << iota
	pvQueryKind
	pvQueryEventID
)

// QueryEvents asks a provider for the events it currently produces
type QueryEvents struct {
	PayloadType *Code
	Kind        *types.EventKind
	EventID     *uint8
}

func (m *QueryEvents) Code() Code { return CodeQueryEvents }

func (m *QueryEvents) MarshalBinary() ([]byte, error) {
	var pv uint8
	if m.PayloadType != nil {
		pv |= pvQueryPayloadType
	}
	if m.Kind != nil {
		pv |= pvQueryKind
	}
	if m.EventID != nil {
		pv |= pvQueryEventID
	}

	w := &writer{}
	w.u8(pv)
	if m.PayloadType != nil {
		w.u16(uint16(*m.PayloadType))
	}
	if m.Kind != nil {
		w.u8(uint8(*m.Kind))
	}
	if m.EventID != nil {
		w.u8(*m.EventID)
	}
	return w.buf, nil
}

func (m *QueryEvents) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	pv := r.u8()
	m.PayloadType, m.Kind, m.EventID = nil, nil, nil
	if pv&pvQueryPayloadType != 0 {
		m.PayloadType = types.Ptr(Code(r.u16()))
	}
	if pv&pvQueryKind != 0 {
		m.Kind = types.Ptr(types.EventKind(r.u8()))
	}
	if pv&pvQueryEventID != 0 {
		m.EventID = types.Ptr(r.u8())
	}
	return r.finish()
}

// EventReport is one entry of a ReportEvents message
type EventReport struct {
	PayloadType Code             `yaml:"payload_type"`
	Kind        types.EventKind  `yaml:"kind"`
	Conditions  types.Conditions `yaml:"conditions,omitempty"`
	EventID     uint8            `yaml:"event_id"`
	Template    []byte           `yaml:"template,omitempty"`
}

const pvReportTemplate uint8 = 1 << 5

// ReportEvents answers QueryEvents
type ReportEvents struct {
	Events []EventReport
}

func (m *ReportEvents) Code() Code { return CodeReportEvents }

func (m *ReportEvents) MarshalBinary() ([]byte, error) {
	if len(m.Events) > 255 {
		return nil, fmt.Errorf("%w: %d events exceed the 8-bit count", ErrInvalidField, len(m.Events))
	}

	w := &writer{}
	w.u8(uint8(len(m.Events)))
	for i := range m.Events {
		e := &m.Events[i]
		setup := EventSetup{Conditions: e.Conditions}
		pv := setup.presence()
		if e.Template != nil {
			pv |= pvReportTemplate
		}
		w.u8(pv)
		w.u16(uint16(e.PayloadType))
		w.u8(uint8(e.Kind))
		setup.writeOptional(w)
		w.u8(e.EventID)
		if e.Template != nil {
			w.blob(e.Template)
		}
	}
	return w.buf, nil
}

func (m *ReportEvents) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	count := int(r.u8())
	m.Events = make([]EventReport, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		pv := r.u8()
		e := EventReport{
			PayloadType: Code(r.u16()),
			Kind:        types.EventKind(r.u8()),
		}
		var setup EventSetup
		setup.readOptional(r, pv&(pvBoundary|pvLimitField|pvLowerLimit|pvUpperLimit|pvState))
		e.Conditions = setup.Conditions
		e.EventID = r.u8()
		if pv&pvReportTemplate != 0 {
			e.Template = r.blob()
			if e.Template == nil && r.err == nil {
				e.Template = []byte{}
			}
		}
		m.Events = append(m.Events, e)
	}
	return r.finish()
}
