// models.go -- Shared domain types for the store package.
// Used by every backend (Postgres, SQLite, Redis).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// UnavailableError wraps any storage failure. Callers fail the current request only;
// the process keeps serving.
type UnavailableError struct {
	Op  string // e.g. "upsert user"
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("user store unavailable: %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// unavailable wraps err in *UnavailableError; nil stays nil.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

// UserRecord represents one persisted user, keyed by the provider's user id.
// Nullable columns are pointers, nil means SQL NULL / absent.
// Tokens are included: this type is only ever serialized on the admin path.
type UserRecord struct {
	ID            string  `json:"id"`
	Username      *string `json:"username"`
	Discriminator *string `json:"discriminator"`
	Avatar        *string `json:"avatar"`
	Email         *string `json:"email"`

	AccessToken    string  `json:"access_token"`
	RefreshToken   *string `json:"refresh_token"`
	TokenExpiresIn int64   `json:"token_expires_in"`
	TokenType      string  `json:"token_type"`
	Scope          string  `json:"scope"`

	FirstLogin time.Time `json:"firstLogin"`
	LastLogin  time.Time `json:"lastLogin"`
	LoginCount int64     `json:"loginCount"`
	LoginIP    *string   `json:"loginIP"`
}

// UserUpsert is the input to UpsertUser: latest identity + grant, caller IP, and login time.
type UserUpsert struct {
	ID            string
	Username      *string
	Discriminator *string
	Avatar        *string
	Email         *string

	AccessToken    string
	RefreshToken   *string
	TokenExpiresIn int64
	TokenType      string
	Scope          string

	LoginIP *string
	At      time.Time
}

// LoginEvent represents one successful login, appended alongside every upsert.
type LoginEvent struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"userId"`
	IP         *string   `json:"ip"`
	LoggedInAt time.Time `json:"loggedInAt"`
}

// Backend is a durable user store. All implementations are safe for concurrent use
// and guarantee UpsertUser never loses a login_count increment for the same id.
type Backend interface {
	// UpsertUser inserts a new record (login_count=1, first_login=last_login=At) or
	// overwrites identity/token/ip fields, bumps last_login and increments login_count.
	// Also appends a LoginEvent in the same atomic mutation.
	UpsertUser(ctx context.Context, in UserUpsert) (*UserRecord, error)

	// ListUsers returns every record ordered by last_login descending.
	ListUsers(ctx context.Context) ([]UserRecord, error)

	// ListLogins returns up to limit login events for userID, newest first.
	ListLogins(ctx context.Context, userID string, limit int) ([]LoginEvent, error)

	// CheckHealth pings the underlying engine.
	CheckHealth(ctx context.Context) error

	// Close releases connections.
	Close() error
}

// loginTime normalizes a login timestamp to the precision every backend can round-trip.
func loginTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// newLoginEvent builds the event appended for in. UUIDv7 keeps ids time-ordered.
func newLoginEvent(in UserUpsert, at time.Time) (LoginEvent, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return LoginEvent{}, fmt.Errorf("generating login event id: %w", err)
	}
	return LoginEvent{ID: id, UserID: in.ID, IP: in.LoginIP, LoggedInAt: at}, nil
}
