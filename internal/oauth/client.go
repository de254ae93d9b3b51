// client.go -- Authorization-code exchange and identity fetch over golang.org/x/oauth2.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"
)

// maxIdentityBody caps how much of the identity response we read.
const maxIdentityBody = 1 << 20

// Endpoints locates the provider's token and identity endpoints.
type Endpoints struct {
	TokenURL    string
	IdentityURL string
}

// ClientConfig holds the client registration used for every exchange.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoints    Endpoints

	// HTTPClient is used for both outbound calls; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Client implements Provider against a single OAuth2 provider.
// Safe for concurrent use.
type Client struct {
	config      *oauth2.Config
	identityURL string
	httpClient  *http.Client
}

// NewClient builds a Client from cfg. Makes no network calls.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				TokenURL: cfg.Endpoints.TokenURL,
				// Credentials go in the form body. AutoDetect would re-send the
				// code with a second auth style on failure, and codes are single-use.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		identityURL: cfg.Endpoints.IdentityURL,
		httpClient:  cfg.HTTPClient,
	}
}

// Exchange performs one form-encoded POST to the token endpoint for the authorization_code grant.
// Non-2xx responses become *TokenExchangeError carrying the status code and raw body.
func (c *Client) Exchange(ctx context.Context, code string) (*TokenGrant, error) {
	tok, err := c.config.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			status := 0
			if re.Response != nil {
				status = re.Response.StatusCode
			}
			return nil, &TokenExchangeError{StatusCode: status, Code: re.ErrorCode, Body: string(re.Body), Err: err}
		}
		// *url.Error comes from the transport; anything else is oauth2 rejecting a 2xx body.
		var ue *url.Error
		if errors.As(err, &ue) || ctx.Err() != nil {
			return nil, &TokenExchangeError{Err: err}
		}
		return nil, &TokenExchangeError{Err: fmt.Errorf("%w: %w", ErrInvalidTokenResponse, err)}
	}

	grant := &TokenGrant{
		AccessToken: tok.AccessToken,
		ExpiresIn:   extraInt(tok, "expires_in"),
		TokenType:   tok.TokenType,
	}
	if tok.RefreshToken != "" {
		grant.RefreshToken = &tok.RefreshToken
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		grant.Scope = scope
	}
	return grant, nil
}

// FetchIdentity performs one bearer-authenticated GET to the identity endpoint.
// Never cached: profile changes must be captured on every login.
func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.identityURL, nil)
	if err != nil {
		return nil, &IdentityFetchError{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	// Static source: the bearer transport only sets the Authorization header, no refresh.
	client := oauth2.NewClient(c.withHTTPClient(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	resp, err := client.Do(req)
	if err != nil {
		return nil, &IdentityFetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxIdentityBody))
		return nil, &IdentityFetchError{StatusCode: resp.StatusCode}
	}

	var raw identityJSON
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIdentityBody)).Decode(&raw); err != nil {
		return nil, &IdentityFetchError{Err: fmt.Errorf("decoding identity: %w", err)}
	}
	identity := raw.normalize()
	if identity.ID == "" {
		return nil, &IdentityFetchError{Err: errors.New("identity response has no id")}
	}
	return identity, nil
}

// withHTTPClient makes oauth2 use the configured client for its own requests.
func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// extraInt reads a numeric token response field. JSON numbers decode as float64;
// some providers send numbers as strings.
func extraInt(tok *oauth2.Token, key string) int64 {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
