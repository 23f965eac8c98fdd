package handlers

import (
	"context"
	"net/http"
	"time"

	"finsight/internal/store"
)

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	coordinator        *store.Coordinator
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(coordinator *store.Coordinator) *HealthHandler {
	return &HealthHandler{
		coordinator:        coordinator,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	// Overall health status: "healthy", "degraded", or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Per-backend results and the cross-store consistency flag
	Stores store.HealthStatus `json:"stores"`

	// List of issues (only present if status is degraded or unhealthy)
	Issues []string `json:"issues,omitempty"`
}

// ServeHTTP handles HTTP requests for health checks. A run with no usable
// storage backend is unhealthy (503); a reachable but drifted or partially
// degraded deployment still serves traffic and reports degraded (200).
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	status := h.coordinator.HealthCheck(checkCtx)

	var issues []string
	if !status.VectorOK {
		issues = append(issues, "vector_store_unavailable")
	}
	if h.coordinator.RelationalEnabled() && !status.RelationalOK {
		issues = append(issues, "relational_store_unavailable")
	}
	if status.VectorOK && status.RelationalOK && !status.Consistent {
		issues = append(issues, "store_counts_inconsistent")
	}

	overall := "healthy"
	httpStatus := http.StatusOK
	switch {
	case !status.VectorOK && !status.RelationalOK:
		overall = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	case len(issues) > 0:
		overall = "degraded"
	}

	writeJSON(w, ctx, httpStatus, HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Stores:    status,
		Issues:    issues,
	})
}
