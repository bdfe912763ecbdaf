package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/events"
	"github.com/cuemby/herald/pkg/log"
	"github.com/cuemby/herald/pkg/transport"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
	"github.com/rs/zerolog"
)

// DefaultRequestTimeout bounds every wait for a reply from a peer
const DefaultRequestTimeout = 2 * time.Second

// Payload describes a query a provider can serve as event payload
type Payload struct {
	Query       wire.Code
	Periodic    bool
	ChangeBased bool

	// Validate may refuse a setup the provider cannot evaluate. A non-nil
	// error rejects the request with invalid event setup.
	Validate func(setup *wire.EventSetup) error
}

// Config holds configuration for creating an EventManager
type Config struct {
	Owner          types.Address
	Transport      transport.Transport
	Broker         *events.Broker
	RequestTimeout time.Duration
	Registry       *wire.Registry

	// Now replaces the clock, for tests
	Now func() time.Time
}

// EventManager is the repository of every event a component produces or
// subscribes to.
//
// Events whose provider is the owner live in the produced index, all others
// in the subscribed index. Each index has a periodic subset that mirrors its
// periodic events. One mutex guards all four; compound sequences use Lock to
// obtain a Tx and release it with Tx.Unlock.
type EventManager struct {
	mu       sync.Mutex
	owner    types.Address
	ownerSet bool

	produced           map[event.Key]*event.Event
	subscribed         map[event.Key]*event.Event
	producedPeriodic   map[event.Key]struct{}
	subscribedPeriodic map[event.Key]struct{}
	payloads           map[wire.Code]Payload

	requestIDs *RequestIDs
	transport  transport.Transport
	broker     *events.Broker
	registry   *wire.Registry
	timeout    time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// NewEventManager creates a new EventManager. When cfg.Owner is set it is
// applied as with SetOwnerID.
func NewEventManager(cfg *Config) (*EventManager, error) {
	m := &EventManager{
		produced:           make(map[event.Key]*event.Event),
		subscribed:         make(map[event.Key]*event.Event),
		producedPeriodic:   make(map[event.Key]struct{}),
		subscribedPeriodic: make(map[event.Key]struct{}),
		payloads:           make(map[wire.Code]Payload),
		requestIDs:         NewRequestIDs(),
		transport:          cfg.Transport,
		broker:             cfg.Broker,
		registry:           cfg.Registry,
		timeout:            cfg.RequestTimeout,
		now:                cfg.Now,
		logger:             log.WithComponent("manager"),
	}
	if m.registry == nil {
		m.registry = wire.DefaultRegistry
	}
	if m.timeout <= 0 {
		m.timeout = DefaultRequestTimeout
	}
	if m.now == nil {
		m.now = time.Now
	}

	if cfg.Owner != (types.Address{}) {
		if err := m.SetOwnerID(cfg.Owner); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SetOwnerID sets the address that classifies events as produced
func (m *EventManager) SetOwnerID(addr types.Address) error {
	if addr.HasWildcard() {
		return fmt.Errorf("%w: %s", ErrInvalidOwnerAddress, addr)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.owner = addr
	m.ownerSet = true
	m.logger = log.WithAddress(addr).With().Str("component", "manager").Logger()
	return nil
}

// Owner returns the owner address and whether it has been set
func (m *EventManager) Owner() (types.Address, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner, m.ownerSet
}

// RegisterPayload declares a query this component can serve. Create requests
// for unregistered payload types are rejected with message not supported.
func (m *EventManager) RegisterPayload(p Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[p.Query] = p
}

// Registry returns the message registry used to decode payloads
func (m *EventManager) Registry() *wire.Registry {
	return m.registry
}

// Lock acquires the repository lock for a compound operation
func (m *EventManager) Lock() *Tx {
	m.mu.Lock()
	return &Tx{m: m}
}

// AddEvent stores e in the index its provider selects
func (m *EventManager) AddEvent(e *event.Event) error {
	tx := m.Lock()
	defer tx.Unlock()
	return tx.AddEvent(e)
}

// Get returns a copy of the event stored under key
func (m *EventManager) Get(key event.Key) (*event.Event, bool) {
	tx := m.Lock()
	defer tx.Unlock()

	e, ok := tx.Get(key)
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// ProducedEvents returns copies of the produced events in key order
func (m *EventManager) ProducedEvents() []*event.Event {
	tx := m.Lock()
	defer tx.Unlock()
	return cloneAll(tx.Produced())
}

// SubscribedEvents returns copies of the subscribed events in key order
func (m *EventManager) SubscribedEvents() []*event.Event {
	tx := m.Lock()
	defer tx.Unlock()
	return cloneAll(tx.Subscribed())
}

// PeriodicEvents returns copies of the periodic produced and subscribed
// events, each in key order
func (m *EventManager) PeriodicEvents() (produced, subscribed []*event.Event) {
	tx := m.Lock()
	defer tx.Unlock()
	return cloneAll(tx.ProducedPeriodic()), cloneAll(tx.SubscribedPeriodic())
}

// DeleteEvent removes the event stored under key. For a subscribed event the
// provider is sent a cancel request and given until the request timeout to
// confirm it; the local removal stands whatever the outcome.
func (m *EventManager) DeleteEvent(ctx context.Context, key event.Key) error {
	tx := m.Lock()
	e, err := tx.DeleteEvent(key)
	var pr *PendingRequest
	var cancel *wire.CancelEvent
	owner := m.owner
	if err == nil && key.Provider != owner && m.transport != nil {
		pr, cancel = tx.cancelRequest(e)
	}
	tx.Unlock()

	if err != nil {
		return err
	}
	if cancel != nil {
		defer m.requestIDs.Release(pr)
		if _, err := m.roundTrip(ctx, key.Provider, cancel); err != nil {
			m.logger.Warn().Err(err).Stringer("event", key).Msg("Provider did not confirm cancel")
		}
	}
	return nil
}

// Stats is a snapshot of the repository sizes
type Stats struct {
	Produced           int `json:"produced"`
	Subscribed         int `json:"subscribed"`
	ProducedPeriodic   int `json:"produced_periodic"`
	SubscribedPeriodic int `json:"subscribed_periodic"`
	Subscribers        int `json:"subscribers"`
}

// Stats returns the current repository sizes
func (m *EventManager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Produced:           len(m.produced),
		Subscribed:         len(m.subscribed),
		ProducedPeriodic:   len(m.producedPeriodic),
		SubscribedPeriodic: len(m.subscribedPeriodic),
	}
	for _, e := range m.produced {
		s.Subscribers += len(e.Subscribers)
	}
	return s
}

func (m *EventManager) publish(t events.NoticeType, msg string, key event.Key, extra ...string) {
	if m.broker == nil {
		return
	}
	md := map[string]string{
		"event":        key.String(),
		"provider":     key.Provider.String(),
		"payload_type": key.PayloadType.String(),
		"kind":         key.Kind.String(),
	}
	for i := 0; i+1 < len(extra); i += 2 {
		md[extra[i]] = extra[i+1]
	}
	m.broker.Publish(&events.Notice{Type: t, Message: msg, Metadata: md})
}

func cloneAll(in []*event.Event) []*event.Event {
	out := make([]*event.Event, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}
