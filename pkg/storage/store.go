package storage

import (
	"errors"
	"time"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/types"
	"github.com/cuemby/herald/pkg/wire"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// Subscription is a confirmed subscription this component requested from
// a provider. It is journaled so a restarted component can request it again.
type Subscription struct {
	Provider  types.Address   `json:"provider"`
	EventID   uint8           `json:"event_id"`
	Setup     wire.EventSetup `json:"setup"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// EventKey returns the key of the subscribed event s was confirmed as
func (s *Subscription) EventKey() event.Key {
	return event.Key{
		ID:          s.EventID,
		Kind:        s.Setup.Kind,
		PayloadType: s.Setup.PayloadType,
		Provider:    s.Provider,
	}
}

// Key returns the journal key of s, the string form of its event key. It
// changes when an update moves the subscription to another event id.
func (s *Subscription) Key() string {
	return s.EventKey().String()
}

// Peer is a known remote component and the UDP endpoint it is reached at
type Peer struct {
	Address  types.Address `json:"address"`
	Endpoint string        `json:"endpoint"`
	LastSeen time.Time     `json:"last_seen"`
}

// Store defines the interface for the local journal
type Store interface {
	// Subscriptions
	PutSubscription(sub *Subscription) error
	GetSubscription(key string) (*Subscription, error)
	ListSubscriptions() ([]*Subscription, error)
	ListSubscriptionsByProvider(provider types.Address) ([]*Subscription, error)
	DeleteSubscription(key string) error

	// Peers
	PutPeer(peer *Peer) error
	GetPeer(addr types.Address) (*Peer, error)
	ListPeers() ([]*Peer, error)
	DeletePeer(addr types.Address) error

	// Utility
	Close() error
}
