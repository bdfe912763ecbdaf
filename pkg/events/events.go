package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NoticeType represents the type of lifecycle notice
type NoticeType string

const (
	NoticeEventCreated          NoticeType = "event.created"
	NoticeEventUpdated          NoticeType = "event.updated"
	NoticeEventDeleted          NoticeType = "event.deleted"
	NoticeEventFired            NoticeType = "event.fired"
	NoticeSubscriberAdded       NoticeType = "subscriber.added"
	NoticeSubscriberRemoved     NoticeType = "subscriber.removed"
	NoticeSubscriptionConfirmed NoticeType = "subscription.confirmed"
	NoticeSubscriptionRejected  NoticeType = "subscription.rejected"
	NoticeSubscriptionCanceled  NoticeType = "subscription.canceled"
	NoticePeerLost              NoticeType = "peer.lost"
)

// Notice describes one change to the local event state
type Notice struct {
	ID        string            `json:"id"`
	Type      NoticeType        `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Subscriber is a channel that receives notices
type Subscriber chan *Notice

// Broker manages notice subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	noticeCh    chan *Notice
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new notice broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		noticeCh:    make(chan *Notice, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. It is safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish queues a notice for all subscribers. It never blocks: callers
// publish while holding their own locks, so a full queue drops the notice.
// Publishing on a nil broker is a no-op.
func (b *Broker) Publish(notice *Notice) {
	if b == nil {
		return
	}
	if notice.ID == "" {
		notice.ID = uuid.New().String()
	}
	if notice.Timestamp.IsZero() {
		notice.Timestamp = time.Now()
	}

	select {
	case b.noticeCh <- notice:
	case <-b.stopCh:
	default:
	}
}

func (b *Broker) run() {
	for {
		select {
		case notice := <-b.noticeCh:
			b.broadcast(notice)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(notice *Notice) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- notice:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
