// handler.go -- Shared dependencies for the callback, admin and health handlers.
package auth

import (
	"context"
	"time"

	"github.com/MGallo-Code/herald/internal/oauth"
	"github.com/MGallo-Code/herald/internal/store"
)

// UserStore defines the persistence operations the handlers need.
// Satisfied by every store.Backend -- defined here (at consumer) per Go convention.
type UserStore interface {
	// UpsertUser records one successful login; see store.Backend.
	UpsertUser(ctx context.Context, in store.UserUpsert) (*store.UserRecord, error)

	// ListUsers returns all users ordered by last login, newest first.
	ListUsers(ctx context.Context) ([]store.UserRecord, error)

	// ListLogins returns up to limit recent login events for one user.
	ListLogins(ctx context.Context, userID string, limit int) ([]store.LoginEvent, error)

	// CheckHealth pings the underlying engine.
	CheckHealth(ctx context.Context) error
}

// AuthHandler holds dependencies for the OAuth callback, admin routes and health check.
type AuthHandler struct {
	US    UserStore
	OP    oauth.Provider
	Admin *AdminSecret

	// ProviderName appears in user-facing failure messages ("Discord OAuth error: ...").
	ProviderName string
	// FrontendCallbackURL is where every callback outcome is redirected, without query.
	FrontendCallbackURL string
	// LoginHistoryLimit is the default page size for ListUserLogins.
	LoginHistoryLimit int

	// Now is the clock used for login timestamps; nil means time.Now.
	Now func() time.Time
}

func (h *AuthHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// isoMillis matches the front end's Date.toISOString() output.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

func formatISO(t time.Time) string {
	return t.UTC().Format(isoMillis)
}
