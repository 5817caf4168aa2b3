package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tradeyodha-signals/internal/services"
)

type stubBreakers []string

func (s stubBreakers) OpenBreakers() []string { return append([]string(nil), s...) }

type stubHost struct {
	snapshot  services.HostSnapshot
	saturated bool
}

func (s stubHost) Snapshot(context.Context) services.HostSnapshot { return s.snapshot }
func (s stubHost) Saturated(services.HostSnapshot) bool           { return s.saturated }

func healthy(context.Context) error { return nil }

func down(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func serveHealth(t *testing.T, handler *HealthHandler) (int, HealthResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	handler.HealthCheck(c)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return w.Code, response
}

func TestHealthHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		checks         []DependencyCheck
		breakers       stubBreakers
		saturated      bool
		expectedCode   int
		expectedStatus string
	}{
		{
			name: "all healthy",
			checks: []DependencyCheck{
				{Name: "postgres", Critical: true, Check: healthy},
				{Name: "redis", Critical: true, Check: healthy},
				{Name: "market_data", Check: healthy},
			},
			expectedCode:   http.StatusOK,
			expectedStatus: "healthy",
		},
		{
			name: "market data down",
			checks: []DependencyCheck{
				{Name: "postgres", Critical: true, Check: healthy},
				{Name: "market_data", Check: down("status 502")},
			},
			expectedCode:   http.StatusOK,
			expectedStatus: "degraded",
		},
		{
			name:           "open breaker",
			checks:         []DependencyCheck{{Name: "redis", Critical: true, Check: healthy}},
			breakers:       stubBreakers{"snapshot", "flow"},
			expectedCode:   http.StatusOK,
			expectedStatus: "degraded",
		},
		{
			name:           "host saturated",
			checks:         []DependencyCheck{{Name: "redis", Critical: true, Check: healthy}},
			saturated:      true,
			expectedCode:   http.StatusOK,
			expectedStatus: "degraded",
		},
		{
			name: "redis down",
			checks: []DependencyCheck{
				{Name: "postgres", Critical: true, Check: healthy},
				{Name: "redis", Critical: true, Check: down("connection refused")},
				{Name: "market_data", Check: down("timeout")},
			},
			expectedCode:   http.StatusServiceUnavailable,
			expectedStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := stubHost{snapshot: services.HostSnapshot{CPUCores: 4, CPUUsage: 12.5}, saturated: tt.saturated}
			handler := NewHealthHandler(tt.checks, tt.breakers, host, "1.0.0")

			code, response := serveHealth(t, handler)

			assert.Equal(t, tt.expectedCode, code)
			assert.Equal(t, tt.expectedStatus, response.Status)
			assert.Len(t, response.Services, len(tt.checks))
			assert.Equal(t, "1.0.0", response.Version)
			require.NotNil(t, response.Host)
			assert.Equal(t, 4, response.Host.CPUCores)
		})
	}
}

func TestHealthHandler_ReportsDetails(t *testing.T) {
	handler := NewHealthHandler([]DependencyCheck{
		{Name: "redis", Critical: true, Check: down("connection refused")},
	}, stubBreakers{"levels", "darkpool"}, nil, "")

	_, response := serveHealth(t, handler)

	assert.Equal(t, "unhealthy: connection refused", response.Services["redis"])
	assert.Equal(t, []string{"darkpool", "levels"}, response.OpenBreakers)
	assert.Nil(t, response.Host)
}

func TestHealthHandler_LivenessCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/live", nil)

	NewHealthHandler(nil, nil, nil, "").LivenessCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}
