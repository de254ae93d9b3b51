// health_handler.go -- Health check handler for GET /health.
package auth

import (
	"encoding/json"
	"net/http"
)

// CheckHealth handles GET /health -- pings the user store.
// Returns 200 if it answers, 503 otherwise.
func (h *AuthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	storeStatus := "ok"
	if err := h.US.CheckHealth(r.Context()); err != nil {
		logError(r, "user store health check failed", "error", err)
		storeStatus = "error"
	}

	w.Header().Set("Content-Type", "application/json")
	if storeStatus == "error" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(struct {
		Store string `json:"store"`
	}{storeStatus})
}
