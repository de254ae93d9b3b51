// oauth_handler.go -- OAuth2 authorization-code callback.
//
// Every GET ends in a 302 to the front end with ?result=<url-encoded JSON>.
// Tokens stay server-side; the redirect only carries non-secret identity fields.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/MGallo-Code/herald/internal/config"
	"github.com/MGallo-Code/herald/internal/oauth"
	"github.com/MGallo-Code/herald/internal/store"
)

const loginSuccessMessage = "Authentication successful! User data saved."

// callbackResult is the JSON carried in the redirect's result parameter.
type callbackResult struct {
	Success bool          `json:"success"`
	User    *callbackUser `json:"user,omitempty"`
	Error   string        `json:"error,omitempty"`
	Message string        `json:"message,omitempty"`
}

// callbackUser is the public subset of a UserRecord. Never add token fields here.
type callbackUser struct {
	ID            string  `json:"id"`
	Username      *string `json:"username"`
	Discriminator *string `json:"discriminator"`
	Avatar        *string `json:"avatar"`
	Email         *string `json:"email"`
	LoginTime     string  `json:"loginTime"`
}

// OAuthCallback handles /auth/callback for every method.
// OPTIONS is a CORS preflight, GET runs the login, anything else is 405.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet:
	default:
		logInfo(r, "oauth callback rejected", "error", ErrMethodNotAllowed)
		MethodNotAllowed(w)
		return
	}

	user, err := h.completeLogin(r)
	if err != nil {
		msg := h.failureMessage(err)
		logOAuthFailure(r, err)
		h.redirectResult(w, r, callbackResult{Success: false, Error: msg})
		return
	}
	h.redirectResult(w, r, callbackResult{Success: true, User: user, Message: loginSuccessMessage})
}

// completeLogin runs validate -> exchange -> identity -> persist.
// Each step's error is returned unchanged so failureMessage can classify it.
func (h *AuthHandler) completeLogin(r *http.Request) (*callbackUser, error) {
	ctx := r.Context()
	q := r.URL.Query()

	// state is not validated; logged so missing-state callbacks are visible.
	logDebug(r, "oauth callback received",
		"has_code", q.Get("code") != "",
		"has_state", q.Get("state") != "")

	if reason := q.Get("error"); reason != "" {
		return nil, &ProviderError{Reason: reason, Description: q.Get("error_description")}
	}
	code := q.Get("code")
	if code == "" {
		return nil, ErrNoCode
	}
	if h.OP == nil {
		return nil, &config.ConfigurationError{Err: errors.New("oauth provider not configured")}
	}

	grant, err := h.OP.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	ident, err := h.OP.FetchIdentity(ctx, grant.AccessToken)
	if err != nil {
		return nil, err
	}

	rec, err := h.US.UpsertUser(ctx, store.UserUpsert{
		ID:             ident.ID,
		Username:       ident.Username,
		Discriminator:  ident.Discriminator,
		Avatar:         ident.Avatar,
		Email:          ident.Email,
		AccessToken:    grant.AccessToken,
		RefreshToken:   grant.RefreshToken,
		TokenExpiresIn: grant.ExpiresIn,
		TokenType:      grant.TokenType,
		Scope:          grant.Scope,
		LoginIP:        clientIP(r),
		At:             h.now(),
	})
	if err != nil {
		return nil, err
	}

	logInfo(r, "user logged in", "user_id", rec.ID, "login_count", rec.LoginCount)
	return &callbackUser{
		ID:            rec.ID,
		Username:      rec.Username,
		Discriminator: rec.Discriminator,
		Avatar:        rec.Avatar,
		Email:         rec.Email,
		LoginTime:     formatISO(rec.LastLogin),
	}, nil
}

// failureMessage maps a login error to the short message shown by the front end.
// Provider bodies and internal error text never reach it.
func (h *AuthHandler) failureMessage(err error) string {
	var (
		pe *ProviderError
		ce *config.ConfigurationError
		te *oauth.TokenExchangeError
		ie *oauth.IdentityFetchError
		ue *store.UnavailableError
	)
	switch {
	case errors.As(err, &pe):
		return fmt.Sprintf("%s OAuth error: %s", h.ProviderName, pe.Reason)
	case errors.Is(err, ErrNoCode):
		return "No authorization code received from " + h.ProviderName
	case errors.As(err, &ce):
		return h.ProviderName + " OAuth credentials not configured"
	case errors.As(err, &te):
		if errors.Is(te, oauth.ErrInvalidTokenResponse) {
			return "Token exchange failed: invalid response"
		}
		if te.StatusCode == 0 {
			return "Token exchange failed: provider unreachable"
		}
		if te.Code != "" {
			return fmt.Sprintf("Token exchange failed: %d %s", te.StatusCode, te.Code)
		}
		return fmt.Sprintf("Token exchange failed: %d", te.StatusCode)
	case errors.As(err, &ie):
		if ie.StatusCode == 0 {
			return "Failed to fetch user info"
		}
		return fmt.Sprintf("Failed to fetch user info: %d", ie.StatusCode)
	case errors.As(err, &ue):
		return "Failed to save user data"
	}
	return "Authentication failed during processing"
}

// logOAuthFailure logs at a level matching who is at fault. The token endpoint's
// raw body is logged here for operators and nowhere else.
func logOAuthFailure(r *http.Request, err error) {
	var (
		pe *ProviderError
		te *oauth.TokenExchangeError
	)
	switch {
	case errors.As(err, &pe), errors.Is(err, ErrNoCode):
		logInfo(r, "oauth callback failed", "stage", "validate", "error", err)
	case errors.As(err, &te):
		logWarn(r, "oauth callback failed", "stage", "exchange",
			"status", te.StatusCode, "code", te.Code, "body", te.Body, "error", err)
	default:
		var ie *oauth.IdentityFetchError
		stage := "persist"
		if errors.As(err, &ie) {
			stage = "identity"
		}
		var ce *config.ConfigurationError
		if errors.As(err, &ce) {
			stage = "config"
		}
		logError(r, "oauth callback failed", "stage", stage, "error", err)
	}
}

// redirectResult sends the 302 to the front end. Marshalling a callbackResult can't fail.
func (h *AuthHandler) redirectResult(w http.ResponseWriter, r *http.Request, res callbackResult) {
	payload, _ := json.Marshal(res)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	http.Redirect(w, r, h.FrontendCallbackURL+"?result="+escapeResult(payload), http.StatusFound)
}

// escapeResult query-escapes payload with spaces as %20, so decodeURIComponent
// and URLSearchParams on the front end read the same text. A literal '+' is already %2B.
func escapeResult(payload []byte) string {
	return strings.ReplaceAll(url.QueryEscape(string(payload)), "+", "%20")
}

// clientIP prefers the edge's Client-Ip header, then RemoteAddr (already rewritten
// by chi's RealIP from X-Forwarded-For / X-Real-IP). Nil when neither is usable.
func clientIP(r *http.Request) *string {
	if ip := strings.TrimSpace(r.Header.Get("Client-Ip")); ip != "" {
		return &ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return nil
	}
	return &host
}
