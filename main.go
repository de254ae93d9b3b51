package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/herald/internal/auth"
	"github.com/MGallo-Code/herald/internal/config"
	"github.com/MGallo-Code/herald/internal/oauth"
	"github.com/MGallo-Code/herald/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	addSrc := cfg.LogLevel == slog.LevelDebug

	// Set up slog to output as json with configured level
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes always execute before os.Exit.
	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup (store close) always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	admin, err := auth.NewAdminSecret(cfg.AdminSecret, cfg.AdminSecretHash)
	if err != nil {
		return &config.ConfigurationError{Err: err}
	}

	// Open user store; backend picked from the DATABASE_URL scheme, migrations applied.
	us, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to set up user store: %w", err)
	}
	// Close at end of run func
	defer us.Close()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	endpoints := oauth.Endpoints{TokenURL: cfg.TokenURL, IdentityURL: cfg.IdentityURL}
	if cfg.IssuerURL != "" {
		discoverCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		endpoints, err = oauth.Discover(discoverCtx, cfg.IssuerURL, httpClient)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to discover oauth endpoints: %w", err)
		}
		slog.Info("oauth endpoints discovered", "issuer", cfg.IssuerURL,
			"token_url", endpoints.TokenURL, "identity_url", endpoints.IdentityURL)
	}

	op := oauth.NewClient(oauth.ClientConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoints:    endpoints,
		HTTPClient:   httpClient,
	})

	h := auth.AuthHandler{
		US:                  us,
		OP:                  op,
		Admin:               admin,
		ProviderName:        cfg.ProviderName,
		FrontendCallbackURL: cfg.FrontendCallbackURL(),
		LoginHistoryLimit:   cfg.LoginHistoryLimit,
	}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           buildRouter(&h, cfg.RequestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("herald listening", "addr", ln.Addr().String(), "provider", cfg.ProviderName)
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	// Wait for server error or shutdown signal from ctx.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Stops accepting new conns, then waits for in-flight callbacks to finish their redirect.
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildRouter wires all routes and middleware.
// Called from run() and directly from smoke tests.
func buildRouter(h *auth.AuthHandler, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", h.CheckHealth)

	// Every method lands in OAuthCallback: it answers OPTIONS and 405s the rest itself.
	r.HandleFunc("/auth/callback", h.OAuthCallback)

	// Admin routes: CORS runs first so preflights never need the secret.
	r.Route("/admin", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Authorization"},
			MaxAge:         300,
		}))
		r.Use(h.RequireAdmin)
		r.Get("/users", h.ListUsers)
		r.Get("/users/{id}/logins", h.ListUserLogins)
	})

	return r
}
