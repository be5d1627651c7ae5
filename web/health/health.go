// Package health reports whether the monitor can still show fresh data.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates the monitor works but its data may be stale.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy Status = "unhealthy"
)

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response represents the health check response.
type Response struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
}

// Version is the monitor build version, set with ldflags.
var Version = "dev"

// APIChecker is a function that checks API connectivity.
type APIChecker func(ctx context.Context) error

// StreamProbe reports whether the event stream is live and how many
// connection attempts have been made.
type StreamProbe func() (live bool, attempts int)

// Checker aggregates backend reachability and stream liveness. A lost stream
// with a reachable backend is degraded: polls keep the status fresh-ish.
type Checker struct {
	apiChecker APIChecker
	stream     StreamProbe
	startTime  time.Time
	version    string
	timeout    time.Duration
	mu         sync.RWMutex
}

// NewChecker creates a new health checker. stream may be nil.
func NewChecker(apiChecker APIChecker, stream StreamProbe, version string) *Checker {
	return &Checker{
		apiChecker: apiChecker,
		stream:     stream,
		startTime:  time.Now(),
		version:    version,
		timeout:    5 * time.Second,
	}
}

// SetTimeout sets the timeout for health checks.
func (c *Checker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Check performs all health checks and returns the aggregated response.
func (c *Checker) Check(ctx context.Context) *Response {
	c.mu.RLock()
	timeout := c.timeout
	c.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := map[string]ComponentStatus{
		"api": c.checkAPI(checkCtx),
	}
	if c.stream != nil {
		components["stream"] = c.checkStream()
	}

	return &Response{
		Status:     overall(components),
		Components: components,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
	}
}

// overall is unhealthy only when the backend is unreachable.
func overall(components map[string]ComponentStatus) Status {
	if components["api"].Status == StatusUnhealthy {
		return StatusUnhealthy
	}
	for _, comp := range components {
		if comp.Status != StatusHealthy {
			return StatusDegraded
		}
	}
	return StatusHealthy
}

// checkAPI verifies API server connectivity.
func (c *Checker) checkAPI(ctx context.Context) ComponentStatus {
	if c.apiChecker == nil {
		return ComponentStatus{
			Status:  StatusUnhealthy,
			Message: "API checker not configured",
		}
	}

	if err := c.apiChecker(ctx); err != nil {
		return ComponentStatus{
			Status:  StatusUnhealthy,
			Message: "API check failed: " + err.Error(),
		}
	}

	return ComponentStatus{
		Status:  StatusHealthy,
		Message: "connected",
	}
}

func (c *Checker) checkStream() ComponentStatus {
	live, attempts := c.stream()
	if live {
		return ComponentStatus{Status: StatusHealthy, Message: "live"}
	}
	if attempts == 0 {
		return ComponentStatus{Status: StatusDegraded, Message: "not connected yet"}
	}
	return ComponentStatus{Status: StatusDegraded, Message: "reconnecting"}
}

// Handler returns an HTTP handler for health checks.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := c.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")

		switch response.Status {
		case StatusHealthy, StatusDegraded:
			w.WriteHeader(http.StatusOK)
		case StatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}
