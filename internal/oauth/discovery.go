// discovery.go -- OIDC discovery of token and userinfo endpoints.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Discover fetches issuer's /.well-known/openid-configuration and returns its token and
// userinfo endpoints. Makes one outbound HTTP request; call once at startup.
// client may be nil to use http.DefaultClient.
func Discover(ctx context.Context, issuer string, client *http.Client) (Endpoints, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return Endpoints{}, fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}

	ep := Endpoints{
		TokenURL:    p.Endpoint().TokenURL,
		IdentityURL: p.UserInfoEndpoint(),
	}
	if ep.TokenURL == "" {
		return Endpoints{}, errors.New("oidc discovery: issuer advertises no token_endpoint")
	}
	if ep.IdentityURL == "" {
		return Endpoints{}, errors.New("oidc discovery: issuer advertises no userinfo_endpoint")
	}
	return ep, nil
}
