package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(t *testing.T) {
	t.Helper()
	healthChecker = newHealthChecker()
	SetCriticalComponents(ComponentTransport, ComponentManager, ComponentScheduler)
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		components map[Component]bool
		wantStatus string
	}{
		{
			name:       "all healthy",
			components: map[Component]bool{ComponentTransport: true, ComponentManager: true},
			wantStatus: StatusHealthy,
		},
		{
			name:       "critical unhealthy",
			components: map[Component]bool{ComponentTransport: false, ComponentManager: true},
			wantStatus: StatusUnhealthy,
		},
		{
			name:       "journal failing degrades",
			components: map[Component]bool{ComponentTransport: true, ComponentJournal: false},
			wantStatus: StatusDegraded,
		},
		{
			name:       "critical failure outranks degraded",
			components: map[Component]bool{ComponentJournal: false, ComponentScheduler: false},
			wantStatus: StatusUnhealthy,
		},
		{
			name:       "nothing registered",
			wantStatus: StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			for name, healthy := range tt.components {
				RegisterComponent(name, healthy, "socket closed")
			}

			health := GetHealth()
			assert.Equal(t, tt.wantStatus, health.Status)
			assert.Len(t, health.Components, len(tt.components))
		})
	}
}

func TestGetHealthReportsMessage(t *testing.T) {
	resetHealth(t)
	SetVersion("0.3.0")
	RegisterComponent(ComponentTransport, false, "socket closed")

	health := GetHealth()
	assert.Equal(t, "unhealthy: socket closed", health.Components["transport"])
	assert.Equal(t, "0.3.0", health.Version)
}

func TestGetHealthReportsEventCounts(t *testing.T) {
	resetHealth(t)
	EventsTotal.WithLabelValues("produced").Set(3)
	EventsTotal.WithLabelValues("subscribed").Set(2)
	PeriodicEventsTotal.WithLabelValues("produced").Set(1)
	PeriodicEventsTotal.WithLabelValues("subscribed").Set(2)
	SubscribersTotal.Set(5)
	t.Cleanup(func() {
		EventsTotal.Reset()
		PeriodicEventsTotal.Reset()
		SubscribersTotal.Set(0)
	})

	health := GetHealth()
	require.NotNil(t, health.Events)
	assert.Equal(t, EventCounts{
		Produced:           3,
		Subscribed:         2,
		ProducedPeriodic:   1,
		SubscribedPeriodic: 2,
		Subscribers:        5,
	}, *health.Events)
}

func TestGetReadiness(t *testing.T) {
	tests := []struct {
		name        string
		components  map[Component]bool
		wantStatus  string
		wantMessage string
	}{
		{
			name:       "all critical ready",
			components: map[Component]bool{ComponentTransport: true, ComponentManager: true, ComponentScheduler: true},
			wantStatus: StatusReady,
		},
		{
			name:        "critical missing",
			components:  map[Component]bool{ComponentTransport: true, ComponentManager: true},
			wantStatus:  StatusNotReady,
			wantMessage: "waiting for scheduler",
		},
		{
			name:        "critical unhealthy",
			components:  map[Component]bool{ComponentTransport: true, ComponentManager: false, ComponentScheduler: true},
			wantStatus:  StatusNotReady,
			wantMessage: "waiting for manager",
		},
		{
			name:       "journal does not gate readiness",
			components: map[Component]bool{ComponentTransport: true, ComponentManager: true, ComponentScheduler: true, ComponentJournal: false},
			wantStatus: StatusReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			for name, healthy := range tt.components {
				RegisterComponent(name, healthy, "")
			}

			readiness := GetReadiness()
			assert.Equal(t, tt.wantStatus, readiness.Status)
			assert.Equal(t, tt.wantMessage, readiness.Message)
			assert.Len(t, readiness.Components, 3)
		})
	}
}

func TestSetCriticalComponents(t *testing.T) {
	resetHealth(t)
	SetCriticalComponents(ComponentJournal)

	assert.Equal(t, StatusNotReady, GetReadiness().Status)
	RegisterComponent(ComponentJournal, true, "")
	assert.Equal(t, StatusReady, GetReadiness().Status)
}

func TestLivenessHandler(t *testing.T) {
	resetHealth(t)
	RegisterComponent(ComponentTransport, false, "down")

	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
	assert.NotEmpty(t, body["uptime"])
}

func TestUpdateComponent(t *testing.T) {
	resetHealth(t)
	RegisterComponent(ComponentManager, true, "")
	UpdateComponent(ComponentManager, false, "owner unset")

	comp := healthChecker.components[ComponentManager]
	assert.False(t, comp.Healthy)
	assert.Equal(t, "owner unset", comp.Message)
}
