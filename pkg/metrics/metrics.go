package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Repository metrics
	EventsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "herald_events_total",
			Help: "Number of stored events by side (produced or subscribed)",
		},
		[]string{"side"},
	)

	PeriodicEventsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "herald_periodic_events_total",
			Help: "Number of stored periodic events by side",
		},
		[]string{"side"},
	)

	SubscribersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "herald_subscribers_total",
			Help: "Total subscriber entries across produced events",
		},
	)

	// Protocol metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_requests_total",
			Help: "Lifecycle requests handled by message type and result",
		},
		[]string{"type", "result"},
	)

	CascadesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_cascades_total",
			Help: "Cascading deletions by scope (component, node, subsystem)",
		},
		[]string{"scope"},
	)

	// Delivery metrics
	NotificationsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_notifications_sent_total",
			Help: "Event notifications handed to the transport",
		},
	)

	NotificationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_notification_failures_total",
			Help: "Event notifications the transport failed to send",
		},
	)

	FanoutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "herald_fanout_duration_seconds",
			Help:    "Time taken to deliver one event to all of its subscribers",
			Buckets: prometheus.DefBuckets,
		},
	)

	SequenceGaps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_sequence_gaps_total",
			Help: "Received notifications whose sequence skipped ahead",
		},
	)

	// Liveness metrics
	PeersLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_peers_lost_total",
			Help: "Components dropped after missing heartbeats",
		},
	)

	SchedulerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "herald_scheduler_tick_duration_seconds",
			Help:    "Time taken by one periodic scheduler pass",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(PeriodicEventsTotal)
	prometheus.MustRegister(SubscribersTotal)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(CascadesTotal)
	prometheus.MustRegister(NotificationsSent)
	prometheus.MustRegister(NotificationFailures)
	prometheus.MustRegister(FanoutDuration)
	prometheus.MustRegister(SequenceGaps)
	prometheus.MustRegister(PeersLost)
	prometheus.MustRegister(SchedulerTickDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
