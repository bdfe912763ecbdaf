/*
Package scheduler fires produced events on behalf of the local component.

Periodic events are fired by a ticker loop. Change-based events are fired
when the application reports a change through Trigger. Both paths look up
the payload in a Catalog and hand it to the manager fan-out.

# Architecture

The loop runs on a short fixed tick (DefaultTick, 10ms) and checks every
produced periodic event in each cycle:

	┌────────────────────────────────────────────────────────────┐
	│                    Scheduler Loop                          │
	│                   (Every tick)                             │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	┌────────────────────────────────────────────────────────────┐
	│  1. Lock the event repository                              │
	│  2. Walk the produced periodic index in key order          │
	│  3. For each event whose period has elapsed:               │
	│     • Look up the payload source by payload type           │
	│     • Build the payload                                    │
	│     • Fan out to every subscriber                          │
	│  4. Unlock                                                 │
	└────────────────────────────────────────────────────────────┘

An event is due when it has never fired or when at least one period
(1/rate seconds) has passed since LastFired. A missed tick is not replayed:
the next tick fires once and the period restarts from there.

# Payload Sources

A SourceFunc turns an event into the report message that travels inside the
notification. It receives a copy of the event so it can read conditions and
the template query, e.g. to answer only the fields a subscriber asked for:

	catalog := scheduler.NewCatalog()
	catalog.Register(wire.CodeQueryTime, func(ctx context.Context, e *event.Event) (wire.Message, error) {
		return &wire.ReportTime{Time: time.Now()}, nil
	})

Sources run while the repository lock is held. They must be quick and must
not call the manager.

# Change-Based Events

The library does not evaluate conditions. The application knows when a
value changed and which limits were crossed, so it calls Trigger with a
predicate over the stored event:

	fired, err := sched.Trigger(ctx, wire.CodeQueryTime, func(e *event.Event) bool {
		return e.Conditions == nil || crossed(e.Conditions, value)
	})

Every produced non-periodic event of that payload type accepted by the
predicate fires once. One-time events are removed after firing.

# Errors

A failing source or a fan-out where every send failed is logged and skipped.
Partial delivery counts as fired; the sequence number advances once per
firing regardless of how many subscribers received it.

# Metrics

Each tick is timed in herald_scheduler_tick_duration_seconds. The component
registers as "scheduler" in the health registry while Run is active.
*/
package scheduler
