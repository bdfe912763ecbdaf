package manager

import (
	"fmt"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/events"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
)

// Tx is a held repository lock. Its methods assume the lock is held and
// must not be used after Unlock.
type Tx struct {
	m *EventManager
}

// Unlock releases the repository lock
func (tx *Tx) Unlock() {
	tx.m.mu.Unlock()
}

// Owner returns the owner address
func (tx *Tx) Owner() types.Address {
	return tx.m.owner
}

// Get returns the stored event for key. The event is owned by the
// repository and may only be modified while the lock is held.
func (tx *Tx) Get(key event.Key) (*event.Event, bool) {
	if e, ok := tx.m.produced[key]; ok {
		return e, true
	}
	e, ok := tx.m.subscribed[key]
	return e, ok
}

// indexes returns the map and periodic subset that own events from provider
func (tx *Tx) indexes(provider types.Address) (map[event.Key]*event.Event, map[event.Key]struct{}) {
	if provider == tx.m.owner {
		return tx.m.produced, tx.m.producedPeriodic
	}
	return tx.m.subscribed, tx.m.subscribedPeriodic
}

// AddEvent stores e, classified by its provider. A produced event needs at
// least one subscriber and none of them may carry a wildcard.
func (tx *Tx) AddEvent(e *event.Event) error {
	if !tx.m.ownerSet {
		return ErrOwnerNotSet
	}

	key := e.Key()
	if key.Provider == tx.m.owner {
		if len(e.Subscribers) == 0 {
			return fmt.Errorf("%w: %s has no subscribers", ErrInvalidSubscribers, key)
		}
		for addr := range e.Subscribers {
			if addr.HasWildcard() {
				return fmt.Errorf("%w: %s subscriber %s", ErrInvalidSubscribers, key, addr)
			}
		}
	}
	byKey, periodic := tx.indexes(key.Provider)
	if _, exists := byKey[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}

	byKey[key] = e
	if e.IsPeriodic() {
		periodic[key] = struct{}{}
	}

	tx.m.logger.Debug().Stringer("event", key).Msg("Event added")
	tx.m.publish(events.NoticeEventCreated, "event added", key)
	return nil
}

// DeleteEvent removes the event stored under key and returns it
func (tx *Tx) DeleteEvent(key event.Key) (*event.Event, error) {
	byKey, periodic := tx.indexes(key.Provider)
	e, ok := byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	delete(byKey, key)
	delete(periodic, key)

	tx.m.logger.Debug().Stringer("event", key).Msg("Event deleted")
	tx.m.publish(events.NoticeEventDeleted, "event deleted", key)
	return e, nil
}

// removeSubscriber detaches addr from a produced event and deletes the event
// once nobody is left. It reports whether the event was deleted.
func (tx *Tx) removeSubscriber(e *event.Event, addr types.Address) bool {
	if !e.RemoveSubscriber(addr) {
		return false
	}
	key := e.Key()
	tx.m.publish(events.NoticeSubscriberRemoved, "subscriber removed", key, "subscriber", addr.String())

	if len(e.Subscribers) > 0 {
		return false
	}
	_, _ = tx.DeleteEvent(key)
	return true
}

// Produced returns the produced events in key order
func (tx *Tx) Produced() []*event.Event {
	return sortedEvents(tx.m.produced, nil)
}

// Subscribed returns the subscribed events in key order
func (tx *Tx) Subscribed() []*event.Event {
	return sortedEvents(tx.m.subscribed, nil)
}

// ProducedPeriodic returns the periodic produced events in key order
func (tx *Tx) ProducedPeriodic() []*event.Event {
	return sortedEvents(tx.m.produced, tx.m.producedPeriodic)
}

// SubscribedPeriodic returns the periodic subscribed events in key order
func (tx *Tx) SubscribedPeriodic() []*event.Event {
	return sortedEvents(tx.m.subscribed, tx.m.subscribedPeriodic)
}

// FindSubscribed returns the subscribed event a provider fires under
// (payloadType, id)
func (tx *Tx) FindSubscribed(provider types.Address, payloadType wire.Code, id uint8) (*event.Event, bool) {
	for key, e := range tx.m.subscribed {
		if key.Provider == provider && key.PayloadType == payloadType && key.ID == id {
			return e, true
		}
	}
	return nil, false
}

// NextEventID returns the lowest id not used by any produced event of
// payloadType
func (tx *Tx) NextEventID(payloadType wire.Code) (uint8, error) {
	var used [256]bool
	for key := range tx.m.produced {
		if key.PayloadType == payloadType {
			used[key.ID] = true
		}
	}
	for id := range used {
		if !used[id] {
			return uint8(id), nil
		}
	}
	return 0, fmt.Errorf("%w: payload type %s", ErrNoEventIDs, payloadType)
}

// sortedEvents lists the events of byKey in key order, restricted to subset
// when it is not nil
func sortedEvents(byKey map[event.Key]*event.Event, subset map[event.Key]struct{}) []*event.Event {
	keys := make([]event.Key, 0, len(byKey))
	if subset != nil {
		for key := range subset {
			keys = append(keys, key)
		}
	} else {
		for key := range byKey {
			keys = append(keys, key)
		}
	}
	event.SortKeys(keys)

	out := make([]*event.Event, 0, len(keys))
	for _, key := range keys {
		out = append(out, byKey[key])
	}
	return out
}
