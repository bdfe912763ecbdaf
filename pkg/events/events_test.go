package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	first := b.Subscribe()
	second := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Notice{Type: NoticeEventCreated, Message: "created", Metadata: map[string]string{"event": "k"}})

	for _, sub := range []Subscriber{first, second} {
		select {
		case n := <-sub:
			assert.Equal(t, NoticeEventCreated, n.Type)
			assert.NotEmpty(t, n.ID)
			assert.False(t, n.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("notice not delivered")
		}
	}
}

func TestPublishKeepsGivenFields(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()
	sub := b.Subscribe()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b.Publish(&Notice{ID: "fixed", Type: NoticePeerLost, Timestamp: ts})

	select {
	case n := <-sub:
		assert.Equal(t, "fixed", n.ID)
		assert.Equal(t, ts, n.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("notice not delivered")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBroker()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish(&Notice{Type: NoticeEventFired})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a broker that is not running")
	}
}

func TestNilBrokerPublish(t *testing.T) {
	var b *Broker
	require.NotPanics(t, func() { b.Publish(&Notice{Type: NoticeEventDeleted}) })
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount())

	require.NotPanics(t, func() { b.Unsubscribe(sub) }, "second unsubscribe is ignored")
	require.NotPanics(t, func() { b.Stop(); b.Stop() })
}
