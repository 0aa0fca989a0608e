package health

import (
	"encoding/json"
	"net/http"
)

// HTTPHandler creates standard HTTP handlers for health checks
type HTTPHandler struct {
	service *Service
}

// NewHTTPHandler creates a new HTTP health handler
func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// RegisterRoutes registers health check routes on a ServeMux
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/ready", h.Ready)
	mux.HandleFunc("/readyz", h.Ready)
	mux.HandleFunc("/live", h.Health)
	mux.HandleFunc("/livez", h.Health)
}

// Health handles the liveness probe
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := h.service.Health(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// Ready handles the readiness probe
func (h *HTTPHandler) Ready(w http.ResponseWriter, r *http.Request) {
	response := h.service.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")

	if response.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(response)
}
