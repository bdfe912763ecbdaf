/*
Package events provides an in-memory notice broker for Herald's local
observers.

The event manager, reconciler and node publish a Notice whenever local state
changes: an event is created or deleted, a subscriber joins or leaves, a
notification fires, a subscription is confirmed or rejected, or a peer stops
sending heartbeats. Observers such as `herald serve --watch` subscribe to the
broker and print or forward the notices.

# Architecture

	┌──────────────────── NOTICE BROKER ─────────────────────┐
	│                                                         │
	│  Publisher ──► notice channel (buffer: 100)             │
	│                    │                                    │
	│              broadcast loop                             │
	│                    │                                    │
	│     ┌──────────────┼──────────────┐                     │
	│     ▼              ▼              ▼                     │
	│  subscriber     subscriber     subscriber               │
	│  (buffer: 50)   (buffer: 50)   (buffer: 50)             │
	└─────────────────────────────────────────────────────────┘

Publish never blocks. The manager publishes while it holds its repository
lock, so a full notice channel or a slow subscriber loses notices instead of
stalling the protocol. Notices are best-effort observability, never a
delivery guarantee; remote subscribers get their notifications from the
transport, not from this broker.

A nil *Broker accepts Publish calls and drops them, so components can be
built without an observer.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for n := range sub {
		fmt.Printf("%s %s %v\n", n.Type, n.Message, n.Metadata)
	}
*/
package events
