package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	version  string
	env      string
	started  time.Time
	sessions func() int
	alerts   func() int
}

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Version     string    `json:"version,omitempty"`
	Uptime      string    `json:"uptime,omitempty"`
	Environment string    `json:"environment,omitempty"`
	Sessions    int       `json:"sessions"`
	Subscribers int       `json:"subscribers"`
}

// NewHealthHandler creates a new health handler. sessions and alerts report
// the open edit sessions and alert subscribers and may be nil.
func NewHealthHandler(version, env string, sessions, alerts func() int) *HealthHandler {
	return &HealthHandler{
		version:  version,
		env:      env,
		started:  time.Now(),
		sessions: sessions,
		alerts:   alerts,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	status := &HealthStatus{
		Status:      "healthy",
		Timestamp:   time.Now(),
		Version:     h.version,
		Uptime:      time.Since(h.started).Round(time.Second).String(),
		Environment: h.env,
	}
	if h.sessions != nil {
		status.Sessions = h.sessions()
	}
	if h.alerts != nil {
		status.Subscribers = h.alerts()
	}
	return c.JSON(http.StatusOK, status)
}
