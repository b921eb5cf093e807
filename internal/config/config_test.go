package config

import "testing"

func TestLoadDoesNotInjectWeakSecretDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("POS_PIN_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.PINSecret != "" {
		t.Fatalf("expected empty POS_PIN_SECRET when unset, got %q", cfg.PINSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("POS_SESSION_TTL_HOURS", "")
	t.Setenv("REPLAY_WINDOW_SECONDS", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.SessionTTLHours != 12 {
		t.Fatalf("expected default session TTL 12h, got %d", cfg.SessionTTLHours)
	}
	if cfg.ReplayWindowSeconds != 300 {
		t.Fatalf("expected default replay window 300s, got %d", cfg.ReplayWindowSeconds)
	}
}

func TestLoadIgnoresInvalidNumericOverrides(t *testing.T) {
	t.Setenv("POS_SESSION_TTL_HOURS", "zero")
	t.Setenv("REPLAY_WINDOW_SECONDS", "-5")

	cfg := Load()
	if cfg.SessionTTLHours != 12 {
		t.Fatalf("expected fallback TTL 12, got %d", cfg.SessionTTLHours)
	}
	if cfg.ReplayWindowSeconds != 300 {
		t.Fatalf("expected fallback window 300, got %d", cfg.ReplayWindowSeconds)
	}
}
