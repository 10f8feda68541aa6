package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTPPort != "8081" {
		t.Fatalf("expected default port 8081, got %s", cfg.HTTPPort)
	}
	if cfg.MatchThreshold != 0.6 {
		t.Fatalf("expected enrollment threshold 0.6, got %g", cfg.MatchThreshold)
	}
	if cfg.KioskThreshold != 0.3 {
		t.Fatalf("expected kiosk threshold 0.3, got %g", cfg.KioskThreshold)
	}
	if cfg.TimeOutGrace != 20*time.Minute {
		t.Fatalf("expected 20m grace, got %s", cfg.TimeOutGrace)
	}
	if cfg.JWTIssuer != "classattend" {
		t.Fatalf("unexpected issuer %s", cfg.JWTIssuer)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("KIOSK_THRESHOLD", "0.25")
	t.Setenv("TIMEOUT_GRACE", "10m")
	t.Setenv("FACE_SKIP", "false")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")

	cfg := Load()
	if cfg.HTTPPort != "9090" {
		t.Fatalf("expected 9090, got %s", cfg.HTTPPort)
	}
	if cfg.StoreBackend != "memory" {
		t.Fatalf("expected memory backend, got %s", cfg.StoreBackend)
	}
	if cfg.KioskThreshold != 0.25 {
		t.Fatalf("expected 0.25, got %g", cfg.KioskThreshold)
	}
	if cfg.TimeOutGrace != 10*time.Minute {
		t.Fatalf("expected 10m, got %s", cfg.TimeOutGrace)
	}
	if cfg.FaceSkip {
		t.Fatal("FACE_SKIP=false should disable skip mode")
	}
	if cfg.RateLimitPerMin != 30 {
		t.Fatalf("expected 30, got %d", cfg.RateLimitPerMin)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("TIMEOUT_GRACE", "soon")
	t.Setenv("KIOSK_THRESHOLD", "tight")
	t.Setenv("FACE_SKIP", "maybe")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")

	cfg := Load()
	if cfg.TimeOutGrace != 20*time.Minute {
		t.Fatalf("malformed duration should fall back, got %s", cfg.TimeOutGrace)
	}
	if cfg.KioskThreshold != 0.3 {
		t.Fatalf("malformed float should fall back, got %g", cfg.KioskThreshold)
	}
	if !cfg.FaceSkip {
		t.Fatal("malformed bool should fall back to default true")
	}
	if cfg.RateLimitPerMin != 120 {
		t.Fatalf("malformed int should fall back, got %d", cfg.RateLimitPerMin)
	}
}
