package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnBadDurations(t *testing.T) {
	t.Setenv("VOID_WINDOW_SECONDS", "not-a-number")
	t.Setenv("EARNINGS_POLL_SECONDS", "-5")

	cfg := Load()
	if cfg.VoidWindowSeconds != 60 {
		t.Fatalf("expected default void window 60, got %d", cfg.VoidWindowSeconds)
	}
	if cfg.EarningsPollSeconds != 30 {
		t.Fatalf("expected default poll interval 30, got %d", cfg.EarningsPollSeconds)
	}
}
