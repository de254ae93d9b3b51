package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

// --- LoadConfig ---

func TestLoadConfig(t *testing.T) {
	// Helper sets the minimum required env vars for a valid config
	setRequired := func(t *testing.T) {
		t.Helper()
		t.Setenv("DATABASE_URL", "sqlite::memory:")
		t.Setenv("OAUTH_CLIENT_ID", "client-id")
		t.Setenv("OAUTH_CLIENT_SECRET", "client-secret")
		t.Setenv("OAUTH_REDIRECT_URL", "https://api.example.com/auth/callback")
		t.Setenv("FRONTEND_URL", "https://app.example.com")
		t.Setenv("ADMIN_SECRET", "root-credential")
		t.Setenv("ADMIN_SECRET_HASH", "")
	}

	t.Run("returns valid config with all required vars", func(t *testing.T) {
		setRequired(t)

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.DatabaseURL != "sqlite::memory:" {
			t.Errorf("DatabaseURL: expected %q, got %q", "sqlite::memory:", cfg.DatabaseURL)
		}
		if cfg.ClientID != "client-id" {
			t.Errorf("ClientID: expected %q, got %q", "client-id", cfg.ClientID)
		}
		if cfg.AdminSecret != "root-credential" {
			t.Errorf("AdminSecret: expected %q, got %q", "root-credential", cfg.AdminSecret)
		}
	})

	t.Run("applies defaults", func(t *testing.T) {
		setRequired(t)

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != "7865" {
			t.Errorf("Port: expected %q, got %q", "7865", cfg.Port)
		}
		if cfg.LogLevel != slog.LevelInfo {
			t.Errorf("LogLevel: expected info, got %v", cfg.LogLevel)
		}
		if cfg.TokenURL != DefaultTokenURL {
			t.Errorf("TokenURL: expected %q, got %q", DefaultTokenURL, cfg.TokenURL)
		}
		if cfg.IdentityURL != DefaultIdentityURL {
			t.Errorf("IdentityURL: expected %q, got %q", DefaultIdentityURL, cfg.IdentityURL)
		}
		if cfg.ProviderName != "Discord" {
			t.Errorf("ProviderName: expected Discord, got %q", cfg.ProviderName)
		}
		if cfg.RequestTimeout != 30*time.Second {
			t.Errorf("RequestTimeout: expected 30s, got %v", cfg.RequestTimeout)
		}
		if cfg.LoginHistoryLimit != 20 {
			t.Errorf("LoginHistoryLimit: expected 20, got %d", cfg.LoginHistoryLimit)
		}
	})

	t.Run("uses custom PORT and LOG_LEVEL when set", func(t *testing.T) {
		setRequired(t)
		t.Setenv("PORT", "9090")
		t.Setenv("LOG_LEVEL", "debug")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != "9090" {
			t.Errorf("Port: expected %q, got %q", "9090", cfg.Port)
		}
		if cfg.LogLevel != slog.LevelDebug {
			t.Errorf("LogLevel: expected debug, got %v", cfg.LogLevel)
		}
	})

	// Each required var, when blank, must fail startup with a ConfigurationError
	for _, key := range []string{"DATABASE_URL", "OAUTH_CLIENT_ID", "OAUTH_CLIENT_SECRET", "OAUTH_REDIRECT_URL", "FRONTEND_URL"} {
		t.Run("errors when "+key+" is missing", func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")

			_, err := LoadConfig()
			if err == nil {
				t.Fatalf("expected error for missing %s, got nil", key)
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected *ConfigurationError, got %T", err)
			}
		})
	}

	t.Run("errors when no admin secret is configured", func(t *testing.T) {
		setRequired(t)
		t.Setenv("ADMIN_SECRET", "")

		_, err := LoadConfig()
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected *ConfigurationError, got %v", err)
		}
	})

	t.Run("errors when both admin secret forms are set", func(t *testing.T) {
		setRequired(t)
		t.Setenv("ADMIN_SECRET_HASH", "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error when ADMIN_SECRET and ADMIN_SECRET_HASH are both set")
		}
	})

	t.Run("accepts ADMIN_SECRET_HASH alone", func(t *testing.T) {
		setRequired(t)
		t.Setenv("ADMIN_SECRET", "")
		t.Setenv("ADMIN_SECRET_HASH", "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA")

		if _, err := LoadConfig(); err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
	})

	t.Run("rejects non-argon2id ADMIN_SECRET_HASH", func(t *testing.T) {
		setRequired(t)
		t.Setenv("ADMIN_SECRET", "")
		t.Setenv("ADMIN_SECRET_HASH", "plaintext")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for non-PHC hash")
		}
	})

	t.Run("rejects relative FRONTEND_URL", func(t *testing.T) {
		setRequired(t)
		t.Setenv("FRONTEND_URL", "/callback")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for relative FRONTEND_URL")
		}
	})

	t.Run("rejects non-http OAUTH_ISSUER_URL", func(t *testing.T) {
		setRequired(t)
		t.Setenv("OAUTH_ISSUER_URL", "ftp://issuer.example.com")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for ftp issuer")
		}
	})

	t.Run("rejects malformed REQUEST_TIMEOUT", func(t *testing.T) {
		setRequired(t)
		t.Setenv("REQUEST_TIMEOUT", "soon")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error for unparseable duration")
		}
	})
}

// --- FrontendCallbackURL ---

func TestFrontendCallbackURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"https://app.example.com", "/callback", "https://app.example.com/callback"},
		{"https://app.example.com/", "/callback", "https://app.example.com/callback"},
		{"https://app.example.com", "callback.html", "https://app.example.com/callback.html"},
		{"https://app.example.com/site/", "/callback", "https://app.example.com/site/callback"},
	}
	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.base, FrontendCallbackPath: tt.path}
		if got := cfg.FrontendCallbackURL(); got != tt.want {
			t.Errorf("FrontendCallbackURL(%q, %q): expected %q, got %q", tt.base, tt.path, tt.want, got)
		}
	}
}
