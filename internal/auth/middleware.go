// middleware.go

// Admin authentication middleware.
package auth

import (
	"net/http"
	"strings"
)

// RequireAdmin checks the Authorization: Bearer <secret> header before anything else
// runs. On mismatch it writes 403 and the wrapped handler (and the store) is never reached.
func (h *AuthHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || secret == "" {
			logWarn(r, "admin auth failed", "reason", "missing_bearer", "error", ErrAccessDenied)
			Forbidden(w)
			return
		}
		if !h.Admin.Verify(secret) {
			logWarn(r, "admin auth failed", "reason", "secret_mismatch", "error", ErrAccessDenied)
			Forbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
