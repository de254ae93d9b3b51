// responses.go -- Fixed-body HTTP responses shared by handlers and middleware.
//
// All messages are plain ASCII constants - no user-controlled input is
// interpolated, so string concat is safe here. Responses with dynamic bodies
// go through go-chi/render in admin_handler.go.
package auth

import (
	"net/http"
)

// MethodNotAllowed returns 405 for callback methods other than GET/OPTIONS.
func MethodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Allow", "GET, OPTIONS")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	w.Write([]byte(`{"error":"Method Not Allowed"}`))
}

// Forbidden returns the admin gate's 403.
// Same body for a missing header and a wrong secret.
func Forbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"Access denied. Admin authentication required."}`))
}
