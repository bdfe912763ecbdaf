package wire

import (
	"fmt"
	"sync"
)

// Factory returns a zero message ready for UnmarshalBinary
type Factory func() Message

// Registry maps message codes to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[Code]Factory
}

// DefaultRegistry knows every message defined in this package
var DefaultRegistry = NewRegistry()

// NewRegistry returns a registry preloaded with this package's messages
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[Code]Factory)}
	r.Register(CodeCreateEvent, func() Message { return &CreateEvent{} })
	r.Register(CodeUpdateEvent, func() Message { return &UpdateEvent{} })
	r.Register(CodeCancelEvent, func() Message { return &CancelEvent{} })
	r.Register(CodeConfirmEventRequest, func() Message { return &ConfirmEventRequest{} })
	r.Register(CodeRejectEventRequest, func() Message { return &RejectEventRequest{} })
	r.Register(CodeQueryEvents, func() Message { return &QueryEvents{} })
	r.Register(CodeReportEvents, func() Message { return &ReportEvents{} })
	r.Register(CodeEvent, func() Message { return &EventMessage{} })
	r.Register(CodeQueryHeartbeatPulse, func() Message { return &QueryHeartbeatPulse{} })
	r.Register(CodeReportHeartbeatPulse, func() Message { return &ReportHeartbeatPulse{} })
	r.Register(CodeQueryTime, func() Message { return &QueryTime{} })
	r.Register(CodeReportTime, func() Message { return &ReportTime{} })
	return r
}

// Register adds or replaces the factory for code
func (r *Registry) Register(code Code, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[code] = f
}

// Known reports whether a factory exists for code
func (r *Registry) Known(code Code) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[code]
	return ok
}

// Decode builds the message for code and fills it from body
func (r *Registry) Decode(code Code, body []byte) (Message, error) {
	r.mu.RLock()
	f, ok := r.factories[code]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCode, code)
	}

	msg := f()
	if err := msg.UnmarshalBinary(body); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", code, err)
	}
	return msg, nil
}
