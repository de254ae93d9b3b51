// config.go

// Environment variable loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Discord defaults; override with OAUTH_* env vars for another provider.
const (
	DefaultTokenURL    = "https://discord.com/api/oauth2/token"
	DefaultIdentityURL = "https://discord.com/api/users/@me"
)

// ConfigurationError reports missing or invalid configuration at startup.
// Fatal: the service cannot attempt an exchange without valid credentials.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Err.Error() }

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Config holds all env configuration vars for herald.
type Config struct {
	Port     string     `env:"PORT" envDefault:"7865"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`

	// DatabaseURL selects the user store backend by scheme (postgres, sqlite, redis).
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// OAuth client registration. RedirectURL must match the URI registered with the provider exactly.
	ClientID     string `env:"OAUTH_CLIENT_ID,required,notEmpty"`
	ClientSecret string `env:"OAUTH_CLIENT_SECRET,required,notEmpty"`
	RedirectURL  string `env:"OAUTH_REDIRECT_URL,required,notEmpty"`

	// ProviderName is used in user-facing failure messages only.
	ProviderName string `env:"OAUTH_PROVIDER_NAME" envDefault:"Discord"`
	TokenURL     string `env:"OAUTH_TOKEN_URL" envDefault:"https://discord.com/api/oauth2/token"`
	IdentityURL  string `env:"OAUTH_IDENTITY_URL" envDefault:"https://discord.com/api/users/@me"`
	// IssuerURL, when set, replaces TokenURL and IdentityURL with OIDC discovery results.
	IssuerURL string `env:"OAUTH_ISSUER_URL"`

	// Front end that receives ?result=<json> after every callback.
	FrontendURL          string `env:"FRONTEND_URL,required,notEmpty"`
	FrontendCallbackPath string `env:"FRONTEND_CALLBACK_PATH" envDefault:"/callback"`

	// Exactly one of these gates the admin read. ADMIN_SECRET_HASH is an argon2id PHC string.
	AdminSecret     string `env:"ADMIN_SECRET"`
	AdminSecretHash string `env:"ADMIN_SECRET_HASH"`

	// RequestTimeout bounds each request, including outbound provider calls.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// LoginHistoryLimit is the default page size for /admin/users/{id}/logins.
	LoginHistoryLimit int `env:"LOGIN_HISTORY_LIMIT" envDefault:"20"`
}

// FrontendCallbackURL joins FrontendURL and FrontendCallbackPath without doubling slashes.
func (c *Config) FrontendCallbackURL() string {
	return strings.TrimRight(c.FrontendURL, "/") + "/" + strings.TrimLeft(c.FrontendCallbackPath, "/")
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns *ConfigurationError if required variables are missing or malformed.
func LoadConfig() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field rules that struct tags can't express.
func (c *Config) Validate() error {
	var errs []error

	if c.AdminSecret == "" && c.AdminSecretHash == "" {
		errs = append(errs, errors.New("one of ADMIN_SECRET or ADMIN_SECRET_HASH is required"))
	}
	if c.AdminSecret != "" && c.AdminSecretHash != "" {
		errs = append(errs, errors.New("ADMIN_SECRET and ADMIN_SECRET_HASH are mutually exclusive"))
	}
	if c.AdminSecretHash != "" && !strings.HasPrefix(c.AdminSecretHash, "$argon2id$") {
		errs = append(errs, errors.New("ADMIN_SECRET_HASH must be an argon2id PHC string"))
	}

	for _, u := range []struct{ key, val string }{
		{"OAUTH_REDIRECT_URL", c.RedirectURL},
		{"FRONTEND_URL", c.FrontendURL},
		{"OAUTH_TOKEN_URL", c.TokenURL},
		{"OAUTH_IDENTITY_URL", c.IdentityURL},
	} {
		if err := requireAbsoluteURL(u.val); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.key, err))
		}
	}
	if c.IssuerURL != "" {
		if err := requireAbsoluteURL(c.IssuerURL); err != nil {
			errs = append(errs, fmt.Errorf("OAUTH_ISSUER_URL: %w", err))
		}
	}

	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.LoginHistoryLimit <= 0 {
		errs = append(errs, errors.New("LOGIN_HISTORY_LIMIT must be positive"))
	}

	if len(errs) > 0 {
		return &ConfigurationError{Err: errors.Join(errs...)}
	}
	return nil
}

// requireAbsoluteURL rejects relative or non-http(s) URLs.
func requireAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http(s) URL, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
