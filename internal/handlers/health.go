package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	// Registry
	regStart := time.Now()
	if err := h.registry.Ping(ctx); err != nil {
		checks["registry"] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks["registry"] = Check{Status: "pass", Latency: time.Since(regStart).String()}
	}

	// Presence backend: a cheap read round-trip against a room that never
	// exists.
	presStart := time.Now()
	if _, err := h.presence.Online(ctx, 0); err != nil {
		checks["presence"] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks["presence"] = Check{Status: "pass", Latency: time.Since(presStart).String()}
	}

	// Partition tree
	if _, err := os.Stat(h.provisioner.Root()); err != nil {
		checks["partitions"] = Check{Status: "fail", Message: "root directory unavailable"}
		allHealthy = false
	} else {
		checks["partitions"] = Check{Status: "pass"}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
