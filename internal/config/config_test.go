package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTHGATE_SECRET", "test-secret")

	cfg, err := Load(true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("unexpected port: %s", cfg.Port)
	}
	if cfg.TokenTTL != 24*time.Hour || cfg.SessionTTL != 8*time.Hour {
		t.Fatalf("unexpected TTLs: %v %v", cfg.TokenTTL, cfg.SessionTTL)
	}
	if cfg.MaxLoginFailures != 5 || cfg.LockoutWindow != 15*time.Minute {
		t.Fatalf("unexpected lockout defaults: %d %v", cfg.MaxLoginFailures, cfg.LockoutWindow)
	}
	if cfg.ProxyTimeout != 10*time.Second {
		t.Fatalf("unexpected proxy timeout: %v", cfg.ProxyTimeout)
	}
	if cfg.ConnectAttempts != 10 || cfg.ConnectBackoff != 3*time.Second {
		t.Fatalf("unexpected connect defaults: %d %v", cfg.ConnectAttempts, cfg.ConnectBackoff)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("AUTHGATE_SECRET", "")

	if _, err := Load(true); err == nil {
		t.Fatal("expected error without AUTHGATE_SECRET")
	}
	// Services that neither issue nor verify tokens may start without one.
	if _, err := Load(false); err != nil {
		t.Fatalf("Load(false): %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTHGATE_SECRET", "test-secret")
	t.Setenv("AUTHGATE_PORT", "9999")
	t.Setenv("AUTHGATE_TOKEN_TTL", "30m")
	t.Setenv("AUTHGATE_CORS_ORIGINS", "https://a.example.com, https://b.example.com,")

	cfg, err := Load(true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" || cfg.TokenTTL != 30*time.Minute {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected CORS origins: %v", cfg.CORSOrigins)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("AUTHGATE_SECRET", "test-secret")

	t.Setenv("AUTHGATE_PORT", "not-a-port")
	if _, err := Load(true); err == nil {
		t.Fatal("expected error for invalid port")
	}
	t.Setenv("AUTHGATE_PORT", "8080")

	t.Setenv("AUTHGATE_TOKEN_TTL", "-5m")
	if _, err := Load(true); err == nil {
		t.Fatal("expected error for negative TTL")
	}
}
