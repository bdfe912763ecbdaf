/*
Package node runs a herald component: it connects a transport to the event
manager and drives everything around it.

# Architecture

	             ┌──────────────────────── Node ────────────────────────┐
	 packets     │                                                      │
	────────────▶│  receive loop ──▶ Touch ──▶ reconciler (peer loss)   │
	             │       │                                              │
	             │       ├─ Create/Update/Cancel/Query ─▶ manager ─┐    │
	             │       ├─ Event ─▶ gap check ─▶ OnNotification   │    │
	             │       └─ Heartbeat query ─▶ heartbeat report    │    │
	             │                                                 ▼    │
	◀────────────│  replies, notifications, heartbeats ◀─── transport   │
	             │                                                      │
	             │  scheduler (periodic firing)   journal (bbolt)       │
	             └──────────────────────────────────────────────────────┘

Run supervises the receive loop, the scheduler, the reconciler, the
heartbeat sender and the journal watcher with an errgroup. Each inbound
packet is handled inside an OpenTelemetry span named "herald.receive".

Every inbound packet counts as a sign of life for the reconciler. Each
heartbeat interval the node sends a pulse report to its configured peers
and a pulse query to the providers it subscribes to, so quiet change-based
subscriptions are not mistaken for lost peers on either side.

# Providing Events

	n.RegisterSource(manager.Payload{Query: wire.CodeQueryTime, Periodic: true},
		func(ctx context.Context, e *event.Event) (wire.Message, error) {
			return &wire.ReportTime{Time: time.Now()}, nil
		})

Periodic events then fire on their own. Change-based events fire when the
application calls Fire.

# Subscribing

	e, err := n.Subscribe(ctx, provider, wire.EventSetup{
		PayloadType:   wire.CodeQueryTime,
		Kind:          types.EventKindPeriodic,
		RequestedRate: types.Ptr(5.0),
	})
	n.OnNotification(func(note node.Notification) { ... })

Notifications carry the decoded payload and flag skipped sequence numbers.
Confirmed subscriptions are written to the journal when a Store is
configured; Resubscribe requests them again after a restart.
*/
package node
