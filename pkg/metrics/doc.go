/*
Package metrics provides Prometheus metrics and component health for herald.

All metrics are registered on the Prometheus DefaultRegistry at package init
and exposed by Handler, which the status server mounts at /metrics.

# Architecture

	┌──────────────── manager ────────────────┐
	│  repository sizes (collector)           │──┐
	│  requests by type and result            │  │
	│  cascades by scope                      │  │
	└─────────────────────────────────────────┘  │
	┌──────────────── scheduler ──────────────┐  │    ┌──────────────┐
	│  tick duration                          │──┼───▶│  Prometheus  │──▶ /metrics
	│  notifications sent and failed          │  │    │  registry    │
	└─────────────────────────────────────────┘  │    └──────────────┘
	┌──────────── node / reconciler ──────────┐  │
	│  sequence gaps, peers lost              │──┘
	└─────────────────────────────────────────┘

# Metrics

Repository:
  - herald_events_total{side}: stored events, produced or subscribed
  - herald_periodic_events_total{side}: the periodic subset
  - herald_subscribers_total: subscriber entries across produced events

Protocol:
  - herald_requests_total{type,result}: create, update, cancel and query
    requests handled, by outcome
  - herald_cascades_total{scope}: deletions triggered by a lost component,
    node or subsystem

Delivery:
  - herald_notifications_sent_total
  - herald_notification_failures_total
  - herald_fanout_duration_seconds: one event to all of its subscribers
  - herald_sequence_gaps_total: notifications that arrived after a skip

Liveness:
  - herald_peers_lost_total
  - herald_scheduler_tick_duration_seconds

# Health

Components report themselves with RegisterComponent and UpdateComponent.
GetReadiness is ready only when every critical component (transport,
manager and scheduler by default) is registered and healthy. GetHealth
is unhealthy when a critical component fails and degraded when only the
journal does; it also carries the repository gauges as EventCounts.

	metrics.RegisterComponent(metrics.ComponentScheduler, true, "running")
	defer metrics.UpdateComponent(metrics.ComponentScheduler, false, "stopped")

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FanoutDuration)
*/
package metrics
