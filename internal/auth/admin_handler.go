// admin_handler.go -- Admin read endpoints. Mounted behind RequireAdmin.
package auth

import (
	"net/http"
	"strconv"

	"github.com/MGallo-Code/herald/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// maxLoginHistory caps the limit query parameter on ListUserLogins.
const maxLoginHistory = 100

type adminUsersResponse struct {
	Success     bool               `json:"success"`
	TotalUsers  int                `json:"totalUsers"`
	Users       []store.UserRecord `json:"users"`
	LastUpdated string             `json:"lastUpdated"`
}

type adminLoginsResponse struct {
	Success bool               `json:"success"`
	UserID  string             `json:"userId"`
	Logins  []store.LoginEvent `json:"logins"`
}

type adminErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ListUsers handles GET /admin/users -- every stored user, tokens included,
// newest login first. 503 if the store can't be read.
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.US.ListUsers(r.Context())
	if err != nil {
		logError(r, "admin list users failed", "error", err)
		adminError(w, r, http.StatusServiceUnavailable, "user store unavailable")
		return
	}

	logInfo(r, "admin listed users", "total", len(users))
	render.JSON(w, r, adminUsersResponse{
		Success:     true,
		TotalUsers:  len(users),
		Users:       users,
		LastUpdated: formatISO(h.now()),
	})
}

// ListUserLogins handles GET /admin/users/{id}/logins?limit=N -- recent login events
// for one user, newest first. limit defaults to LoginHistoryLimit.
func (h *AuthHandler) ListUserLogins(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	limit := h.LoginHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLoginHistory {
			adminError(w, r, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxLoginHistory))
			return
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}

	logins, err := h.US.ListLogins(r.Context(), userID, limit)
	if err != nil {
		logError(r, "admin list logins failed", "error", err, "user_id", userID)
		adminError(w, r, http.StatusServiceUnavailable, "user store unavailable")
		return
	}

	render.JSON(w, r, adminLoginsResponse{Success: true, UserID: userID, Logins: logins})
}

func adminError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, adminErrorResponse{Success: false, Error: msg})
}
