package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Set(t *testing.T) {
	h := NewHealthChecker("dev")

	h.Set("supervisor", true, "connected")

	comp, ok := h.Component("supervisor")
	require.True(t, ok)
	assert.True(t, comp.Healthy)
	assert.Equal(t, "connected", comp.Message)
	assert.False(t, comp.Updated.IsZero())

	h.Set("supervisor", false, "socket missing")
	comp, _ = h.Component("supervisor")
	assert.False(t, comp.Healthy)
}

func TestHealthChecker_Health(t *testing.T) {
	h := NewHealthChecker("1.0.0")
	h.Set("supervisor", true, "")
	h.Set("workload", true, "")

	health := h.Health()
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Len(t, health.Components, 2)
	assert.Equal(t, "1.0.0", health.Version)

	h.Set("workload", false, "HTTP 500")
	health = h.Health()
	assert.Equal(t, StatusUnhealthy, health.Status)
	assert.Equal(t, "unhealthy: HTTP 500", health.Components["workload"])
}

func TestHealthChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		expected   string
	}{
		{
			name:       "critical component missing",
			components: map[string]bool{"workload": true},
			expected:   StatusNotReady,
		},
		{
			name:       "critical component unhealthy",
			components: map[string]bool{"supervisor": false},
			expected:   StatusNotReady,
		},
		{
			name:       "critical component healthy, others ignored",
			components: map[string]bool{"supervisor": true, "workload": false},
			expected:   StatusReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker("dev", "supervisor")
			for name, healthy := range tt.components {
				h.Set(name, healthy, "")
			}

			assert.Equal(t, tt.expected, h.Readiness().Status)
		})
	}
}

func TestHealthChecker_Handlers(t *testing.T) {
	h := NewHealthChecker("dev", "supervisor")

	rec := httptest.NewRecorder()
	h.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.Set("supervisor", true, "")

	rec = httptest.NewRecorder()
	h.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, StatusHealthy, body.Status)
	assert.Equal(t, "healthy", body.Components["supervisor"])

	h.Set("workload", false, "connection refused")
	rec = httptest.NewRecorder()
	h.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
