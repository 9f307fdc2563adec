package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler handles health check requests for liveness probes.
type HealthHandler struct{}

// NewHealthHandler creates a new health check handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP implements http.Handler for liveness checks.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ReadyHandler handles readiness check requests. The gateway is ready when
// at least one configured endpoint is currently available (not cooling
// down).
type ReadyHandler struct {
	runtime Runtime
}

// NewReadyHandler creates a new readiness check handler.
func NewReadyHandler(rt Runtime) *ReadyHandler {
	return &ReadyHandler{runtime: rt}
}

// ServeHTTP implements http.Handler for readiness checks.
func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	health := h.runtime.Health()

	total := 0
	available := 0
	for _, endpoint := range h.runtime.Pool().Endpoints() {
		total++
		if health.IsAvailable(endpoint.Key(), now) {
			available++
		}
	}

	isReady := available > 0

	status := "ready"
	statusCode := http.StatusOK
	if !isReady {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status": status,
		"endpoints": map[string]interface{}{
			"total":     total,
			"available": available,
		},
		"timestamp": now.Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
