package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tradeyodha-signals/internal/services"
)

const healthCheckTimeout = 5 * time.Second

var startTime = time.Now()

// DependencyCheck checks one collaborator. A failing critical dependency makes
// the service unhealthy; any other failure only degrades it.
type DependencyCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// HostSampler reports host load.
type HostSampler interface {
	Snapshot(ctx context.Context) services.HostSnapshot
	Saturated(s services.HostSnapshot) bool
}

// BreakerReporter lists collaborator endpoints whose breaker is open.
type BreakerReporter interface {
	OpenBreakers() []string
}

type HealthHandler struct {
	checks   []DependencyCheck
	breakers BreakerReporter
	host     HostSampler
	version  string
}

type HealthResponse struct {
	Status       string                 `json:"status"`
	Timestamp    time.Time              `json:"timestamp"`
	Services     map[string]string      `json:"services"`
	OpenBreakers []string               `json:"open_breakers"`
	Host         *services.HostSnapshot `json:"host,omitempty"`
	Version      string                 `json:"version"`
	Uptime       string                 `json:"uptime"`
}

func NewHealthHandler(checks []DependencyCheck, breakers BreakerReporter, host HostSampler, version string) *HealthHandler {
	return &HealthHandler{
		checks:   checks,
		breakers: breakers,
		host:     host,
		version:  version,
	}
}

// HealthCheck checks every dependency concurrently. It answers 503 only when a
// critical dependency is down.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	statuses := make(map[string]string, len(h.checks))
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		critical bool
		degraded bool
	)
	for _, check := range h.checks {
		wg.Add(1)
		go func(check DependencyCheck) {
			defer wg.Done()
			err := check.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				statuses[check.Name] = "healthy"
				return
			}
			statuses[check.Name] = "unhealthy: " + err.Error()
			if check.Critical {
				critical = true
			} else {
				degraded = true
			}
		}(check)
	}
	wg.Wait()

	response := HealthResponse{
		Status:       "healthy",
		Timestamp:    time.Now(),
		Services:     statuses,
		OpenBreakers: []string{},
		Version:      h.version,
		Uptime:       time.Since(startTime).String(),
	}

	if h.breakers != nil {
		if open := h.breakers.OpenBreakers(); len(open) > 0 {
			sort.Strings(open)
			response.OpenBreakers = open
			degraded = true
		}
	}

	if h.host != nil {
		snapshot := h.host.Snapshot(ctx)
		response.Host = &snapshot
		if h.host.Saturated(snapshot) {
			degraded = true
		}
	}

	statusCode := http.StatusOK
	switch {
	case critical:
		response.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	case degraded:
		response.Status = "degraded"
	}

	c.JSON(statusCode, response)
}

// LivenessCheck answers as long as the process serves requests.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
