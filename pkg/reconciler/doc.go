/*
Package reconciler provides peer failure detection for a herald component.

The reconciler tracks when each peer was last heard from and removes the
events of peers that went silent. Removing a peer is a topology-loss
cascade in the event manager: subscriptions it provided are dropped and it
is removed from the subscriber set of every produced event, deleting events
left without subscribers.

# Architecture

The reconciler runs on a fixed interval (one second by default):

	┌────────────────────────────────────────────────────────────┐
	│                  Reconciliation Loop                       │
	│                   (Every interval)                         │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	┌────────────────────────────────────────────────────────────┐
	│  1. Collect peers silent for longer than the timeout       │
	│  2. Group them by subsystem and node                       │
	│  3. Pick the widest scope with no live peer left           │
	│  4. Cascade through the event manager                      │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	    ┌────────────┼─────────────────┐
	    ▼            ▼                 ▼
	Component     Node              Subsystem
	lost          lost              lost

# Failure Detection

Every inbound packet counts as proof of life. The node runtime calls Touch
with the packet source, and heartbeats keep idle peers fresh:

	Last heard:   10:30:00
	Current time: 10:30:06  (6 seconds elapsed, timeout 5s)
	Result:       peer lost

Wildcard sources are never tracked.

# Scope Selection

A sweep escalates only when the evidence covers the whole scope:

  - Subsystem: lost peers span more than one node and no tracked peer of
    the subsystem is still alive
  - Node: more than one peer of the node was lost and none is alive
  - Component: everything else, one cascade per peer

NodeLost and SubsystemLost can also be called directly when the transport
learns about a loss from elsewhere.

# Observability

Each loss increments herald_peers_lost_total by the number of peers,
publishes a peer.lost notice, and logs the cascade result at Info level.
*/
package reconciler
