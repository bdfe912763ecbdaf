package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/herald/pkg/event"
	"github.com/cuemby/herald/pkg/manager"
	"github.com/cuemby/herald/pkg/metrics"
	"github.com/cuemby/herald/pkg/reconciler"
	"github.com/cuemby/herald/pkg/types"
)

// Node is the part of a running component the status server reports on
type Node interface {
	Address() types.Address
	Manager() *manager.EventManager
	Peers() []reconciler.PeerStatus
}

// HealthServer provides HTTP health, metrics and status endpoints
type HealthServer struct {
	node    Node
	version string
	mux     *http.ServeMux
	server  *http.Server
}

// NewHealthServer creates a new status HTTP server for n
func NewHealthServer(n Node, version string) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		node:    n,
		version: version,
		mux:     mux,
	}

	// Register endpoints
	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.HandleFunc("/live", metrics.LivenessHandler())
	mux.HandleFunc("/events", hs.eventsHandler)
	mux.HandleFunc("/peers", hs.peersHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start starts the HTTP server. It blocks until Shutdown is called.
func (hs *HealthServer) Start(addr string) error {
	hs.server = &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := hs.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	if hs.server == nil {
		return nil
	}
	return hs.server.Shutdown(ctx)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string               `json:"status"`
	Timestamp  time.Time            `json:"timestamp"`
	Version    string               `json:"version,omitempty"`
	Uptime     string               `json:"uptime,omitempty"`
	Components map[string]string    `json:"components,omitempty"`
	Events     *metrics.EventCounts `json:"events,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// EventView is one event as reported by /events
type EventView struct {
	Key         string   `json:"key"`
	ID          uint8    `json:"id"`
	Kind        string   `json:"kind"`
	PayloadType string   `json:"payload_type"`
	Provider    string   `json:"provider"`
	Rate        float64  `json:"rate,omitempty"`
	Sequence    uint8    `json:"sequence"`
	Subscribers []string `json:"subscribers,omitempty"`
}

// EventsResponse represents the /events response
type EventsResponse struct {
	Address    string        `json:"address"`
	Stats      manager.Stats `json:"stats"`
	Produced   []EventView   `json:"produced"`
	Subscribed []EventView   `json:"subscribed"`
	Periodic   PeriodicView  `json:"periodic"`
}

// PeriodicView lists the keys of the periodic events on each side
type PeriodicView struct {
	Produced   []string `json:"produced"`
	Subscribed []string `json:"subscribed"`
}

// PeerView is one peer as reported by /peers
type PeerView struct {
	Address   string    `json:"address"`
	LastHeard time.Time `json:"last_heard"`
}

// healthHandler implements the /health endpoint. A degraded node still
// answers 200; only a failed critical component turns it into a 503.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := metrics.GetHealth()
	statusCode := http.StatusOK
	if health.Status == metrics.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, HealthResponse{
		Status:     health.Status,
		Timestamp:  health.Timestamp,
		Version:    hs.version,
		Uptime:     health.Uptime,
		Components: health.Components,
		Events:     health.Events,
	})
}

// readyHandler implements the /ready endpoint
// This checks if the component can serve requests
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	// Check 1: owner address
	if hs.node != nil {
		if addr, ok := hs.node.Manager().Owner(); ok {
			checks["owner"] = addr.String()
		} else {
			checks["owner"] = "not set"
			ready = false
			message = "Owner address not set"
		}
	} else {
		checks["owner"] = "not initialized"
		ready = false
		message = "Node not initialized"
	}

	// Check 2: registered components (transport, manager, scheduler)
	readiness := metrics.GetReadiness()
	for name, status := range readiness.Components {
		checks[name] = status
	}
	if readiness.Status != metrics.StatusReady {
		ready = false
		if message == "" {
			message = readiness.Message
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	})
}

// eventsHandler implements the /events endpoint
func (hs *HealthServer) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hs.node == nil {
		http.Error(w, "Node not initialized", http.StatusServiceUnavailable)
		return
	}

	mgr := hs.node.Manager()
	producedPeriodic, subscribedPeriodic := mgr.PeriodicEvents()
	writeJSON(w, http.StatusOK, EventsResponse{
		Address:    hs.node.Address().String(),
		Stats:      mgr.Stats(),
		Produced:   views(mgr.ProducedEvents()),
		Subscribed: views(mgr.SubscribedEvents()),
		Periodic: PeriodicView{
			Produced:   keys(producedPeriodic),
			Subscribed: keys(subscribedPeriodic),
		},
	})
}

// peersHandler implements the /peers endpoint
func (hs *HealthServer) peersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hs.node == nil {
		http.Error(w, "Node not initialized", http.StatusServiceUnavailable)
		return
	}

	peers := hs.node.Peers()
	out := make([]PeerView, 0, len(peers))
	for _, p := range peers {
		out = append(out, PeerView{Address: p.Address.String(), LastHeard: p.LastHeard})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

func views(in []*event.Event) []EventView {
	out := make([]EventView, 0, len(in))
	for _, e := range in {
		v := EventView{
			Key:         e.Key().String(),
			ID:          e.ID,
			Kind:        e.Kind.String(),
			PayloadType: e.PayloadType.String(),
			Provider:    e.Provider.String(),
			Rate:        e.Rate,
			Sequence:    e.Sequence,
		}
		for _, s := range e.Subscribers.Sorted() {
			v.Subscribers = append(v.Subscribers, s.String())
		}
		out = append(out, v)
	}
	return out
}

func keys(in []*event.Event) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		out = append(out, e.Key().String())
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
