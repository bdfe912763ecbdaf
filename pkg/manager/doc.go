/*
Package manager implements the EventManager, the repository that holds every
event a component produces for others or subscribes to from others, and the
lifecycle protocol that drives it.

# Architecture

	┌───────────────────────── EVENT MANAGER ──────────────────────────┐
	│                                                                   │
	│   owner 1.1.2.1                                                   │
	│                                                                   │
	│   ┌──────────── produced ────────────┐  ┌──────── subscribed ───┐ │
	│   │ Key → *Event (provider == owner) │  │ Key → *Event (others) │ │
	│   │   subscribers: {A, B, ...}       │  │   no subscriber set   │ │
	│   └──────────────┬───────────────────┘  └──────────┬────────────┘ │
	│                  │ periodic subset                 │ periodic     │
	│   ┌──────────────▼───────────────────┐  ┌──────────▼────────────┐ │
	│   │ producedPeriodic {Key}           │  │ subscribedPeriodic    │ │
	│   └──────────────────────────────────┘  └───────────────────────┘ │
	│                                                                   │
	│   one sync.Mutex guards all four; Lock() returns a *Tx             │
	└───────────────────────────────────────────────────────────────────┘

AddEvent is the only way into the indexes. It classifies the event by
comparing its provider to the owner address, refuses duplicate keys, and
records periodic events in the matching subset. DeleteEvent and every
cascade remove from both the map and the subset in the same step, so the
subsets always equal the periodic part of their map.

# Locking

Every exported EventManager method takes the lock for its own duration.
Callers that need several steps to be atomic, such as the scheduler walking
the periodic subset and firing each due event, call Lock and work through
the returned Tx:

	tx := mgr.Lock()
	defer tx.Unlock()

	for _, e := range tx.ProducedPeriodic() {
		if e.Due(now) {
			_, _ = tx.GenerateEvent(ctx, e.Key(), payload)
		}
	}

The mutex is not reentrant. Code holding a Tx must only call Tx methods.

# Provider side

A create request is validated against the payload catalog (RegisterPayload)
and then matched against the produced events with
event.Event.MatchesCreateRequest. A match adds the caller to that event's
subscribers; otherwise a new event is stored under the lowest id unused in
its payload-type namespace. Update requests change a sole-subscriber event
in place and move the caller off a shared one. Cancel requests follow a
four-step precedence (payload type and id, payload type, id, anything) and
affect at most one event. A produced event whose last subscriber leaves is
deleted in the same operation.

GenerateEvent encodes the notification once, then patches the destination
for each subscriber before handing the buffer to the transport. One failed
send never stops the others; the call fails only when encoding fails or no
subscriber could be reached.

# Subscriber side

RequestEvent, UpdateSubscription and DeleteEvent talk to providers through
transport.Transport.SendAndWait, bounded by the request timeout. A create
that times out stores nothing. An update or cancel that times out is applied
locally anyway.

# Topology loss

DeleteComponent, DeleteComponentsFromNode and DeleteComponentsFromSubsystem
remove subscriptions held from the lost peers and strip the peers from
produced events' subscriber sets, under a single lock acquisition.
*/
package manager
