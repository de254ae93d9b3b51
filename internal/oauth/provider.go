// provider.go -- OAuth provider contract, transient grant/identity types and errors.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidTokenResponse marks a 2xx token response that carried no usable token.
var ErrInvalidTokenResponse = errors.New("invalid token response")

// TokenGrant is the provider's answer to a successful code exchange.
// Lives only for one callback; never forwarded to the front end.
type TokenGrant struct {
	AccessToken  string
	RefreshToken *string // nil when the provider issued none
	ExpiresIn    int64   // seconds
	TokenType    string
	Scope        string
}

// Identity is the provider's "who am I" answer, normalized.
// ID is the provider-assigned stable identifier; every other field may be absent (nil).
type Identity struct {
	ID            string
	Username      *string
	Discriminator *string
	Avatar        *string
	Email         *string
}

// Provider exchanges authorization codes and fetches identities.
// Implementations make exactly one outbound request per call and never retry;
// authorization codes are single-use.
type Provider interface {
	// Exchange trades an authorization code for a token grant.
	// Returns *TokenExchangeError on any failure.
	Exchange(ctx context.Context, code string) (*TokenGrant, error)

	// FetchIdentity resolves an access token to the authenticated identity.
	// Returns *IdentityFetchError on any failure.
	FetchIdentity(ctx context.Context, accessToken string) (*Identity, error)
}

// TokenExchangeError is returned when the token endpoint rejects the code or can't be reached.
// StatusCode is 0 for transport failures (including context cancellation) and for
// 2xx responses without a usable token, which wrap ErrInvalidTokenResponse.
// Body holds the provider's response verbatim; log it, never show it to end users.
type TokenExchangeError struct {
	StatusCode int
	Code       string // provider "error" field, e.g. "invalid_grant"
	Body       string
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token exchange failed: status %d: %s", e.StatusCode, e.Body)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// IdentityFetchError is returned when the identity endpoint fails or returns an unusable body.
// StatusCode is 0 for transport and decoding failures.
type IdentityFetchError struct {
	StatusCode int
	Err        error
}

func (e *IdentityFetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("identity fetch failed: %v", e.Err)
	}
	return fmt.Sprintf("identity fetch failed: status %d", e.StatusCode)
}

func (e *IdentityFetchError) Unwrap() error { return e.Err }

// flexID accepts identifiers sent as JSON strings (Discord) or numbers (GitHub).
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id must be an integer: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// identityJSON covers Discord's /users/@me and OIDC userinfo field names.
type identityJSON struct {
	ID                flexID  `json:"id"`
	Sub               string  `json:"sub"`
	Username          *string `json:"username"`
	PreferredUsername *string `json:"preferred_username"`
	Discriminator     *string `json:"discriminator"`
	Avatar            *string `json:"avatar"`
	Picture           *string `json:"picture"`
	Email             *string `json:"email"`
}

// normalize maps provider-specific names onto Identity. Provider-native names win.
func (j identityJSON) normalize() *Identity {
	id := string(j.ID)
	if id == "" {
		id = j.Sub
	}
	return &Identity{
		ID:            id,
		Username:      firstNonNil(j.Username, j.PreferredUsername),
		Discriminator: j.Discriminator,
		Avatar:        firstNonNil(j.Avatar, j.Picture),
		Email:         j.Email,
	}
}

func firstNonNil(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
