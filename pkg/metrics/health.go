package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Component names a part of a node that reports its health
type Component string

const (
	ComponentTransport Component = "transport"
	ComponentManager   Component = "manager"
	ComponentScheduler Component = "scheduler"
	ComponentJournal   Component = "journal"
)

// Health and readiness states
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// EventCounts is the repository size as last published to the gauges
type EventCounts struct {
	Produced           int `json:"produced"`
	Subscribed         int `json:"subscribed"`
	ProducedPeriodic   int `json:"produced_periodic"`
	SubscribedPeriodic int `json:"subscribed_periodic"`
	Subscribers        int `json:"subscribers"`
}

// HealthStatus is a snapshot of node health or readiness
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Events     *EventCounts      `json:"events,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

var (
	healthChecker = newHealthChecker()

	// criticalComponents must all be registered and healthy before the
	// node reports ready. Any of them failing makes the node unhealthy;
	// other failing components only degrade it.
	criticalComponents = []Component{ComponentTransport, ComponentManager, ComponentScheduler}
)

// ComponentHealth tracks the health of a single component
type ComponentHealth struct {
	Name    Component
	Healthy bool
	Message string
	Updated time.Time
}

// HealthChecker holds the last reported state of every component
type HealthChecker struct {
	mu         sync.RWMutex
	components map[Component]ComponentHealth
	startTime  time.Time
	version    string
}

func newHealthChecker() *HealthChecker {
	return &HealthChecker{
		components: make(map[Component]ComponentHealth),
		startTime:  time.Now(),
	}
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// RegisterComponent records the state of a component
func RegisterComponent(name Component, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent updates the health status of a component
func UpdateComponent(name Component, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// SetCriticalComponents replaces the components readiness waits for
func SetCriticalComponents(names ...Component) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	criticalComponents = append([]Component(nil), names...)
}

func isCritical(name Component) bool {
	for _, c := range criticalComponents {
		if c == name {
			return true
		}
	}
	return false
}

// GetHealth returns the overall health together with the repository
// counts. A failing critical component makes the node unhealthy, any other
// failing component degrades it.
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := StatusHealthy
	components := make(map[string]string, len(healthChecker.components))

	for name, comp := range healthChecker.components {
		if comp.Healthy {
			components[string(name)] = StatusHealthy
			continue
		}
		components[string(name)] = StatusUnhealthy + ": " + comp.Message
		if isCritical(name) {
			status = StatusUnhealthy
		} else if status == StatusHealthy {
			status = StatusDegraded
		}
	}

	counts := CurrentEventCounts()
	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Events:     &counts,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
	}
}

// GetReadiness reports whether every critical component is registered and
// healthy. Message names the first one still missing.
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()

	status := StatusReady
	message := ""
	components := make(map[string]string, len(criticalComponents))

	for _, name := range criticalComponents {
		comp, exists := healthChecker.components[name]
		switch {
		case !exists:
			components[string(name)] = "not registered"
		case !comp.Healthy:
			components[string(name)] = "not ready: " + comp.Message
		default:
			components[string(name)] = StatusReady
			continue
		}
		if status == StatusReady {
			status = StatusNotReady
			message = "waiting for " + string(name)
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    healthChecker.version,
		Uptime:     time.Since(healthChecker.startTime).String(),
	}
}

// CurrentEventCounts reads the repository gauges
func CurrentEventCounts() EventCounts {
	return EventCounts{
		Produced:           gaugeValue(EventsTotal.WithLabelValues("produced")),
		Subscribed:         gaugeValue(EventsTotal.WithLabelValues("subscribed")),
		ProducedPeriodic:   gaugeValue(PeriodicEventsTotal.WithLabelValues("produced")),
		SubscribedPeriodic: gaugeValue(PeriodicEventsTotal.WithLabelValues("subscribed")),
		Subscribers:        gaugeValue(SubscribersTotal),
	}
}

func gaugeValue(g prometheus.Gauge) int {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return int(m.GetGauge().GetValue())
}

// LivenessHandler returns a simple liveness check (always returns 200 if process is running)
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(healthChecker.startTime).String(),
		})
	}
}
