package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("kiosk-7", "device", "classattend", "test-key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("tokens should not be empty")
	}

	claims, err := Parse(pair.AccessToken, "test-key", "classattend")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.Subject != "kiosk-7" {
		t.Fatalf("expected subject kiosk-7, got %s", claims.Subject)
	}
	if claims.Role != "device" {
		t.Fatalf("expected role device, got %s", claims.Role)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue("kiosk-7", "device", "classattend", "test-key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "other-key", "classattend"); err == nil {
		t.Fatal("wrong key should fail verification")
	}
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	pair, err := Issue("t-1", "teacher", "someone-else", "test-key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "test-key", "classattend"); err == nil {
		t.Fatal("issuer mismatch should fail")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue("t-1", "teacher", "classattend", "test-key", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "test-key", "classattend"); err == nil {
		t.Fatal("expired token should fail")
	}
}
