package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LISTEN_ADDR", "DATABASE_PATH", "DEFAULT_TIMEZONE", "STARTER_MISSION_LIMIT", "RESOLVER_TIMEOUT", "RECONCILE_ENABLED"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected listen addr :8080, got %q", cfg.ListenAddr)
	}
	if cfg.DatabasePath != "wellnesslog.db" {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
	if cfg.StarterMissionLimit != 3 {
		t.Fatalf("expected starter limit 3, got %d", cfg.StarterMissionLimit)
	}
	if cfg.ResolverTimeout != 3*time.Second {
		t.Fatalf("expected resolver timeout 3s, got %s", cfg.ResolverTimeout)
	}
	if !cfg.ReconcileEnabled {
		t.Fatal("expected reconciliation enabled by default")
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC location, got %v (err=%v)", loc, err)
	}
}

func TestLoadOverridesAndInvalidValues(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("STARTER_MISSION_LIMIT", "5")
	t.Setenv("RESOLVER_TIMEOUT", "not-a-duration")
	t.Setenv("BATCH_CONCURRENCY", "-2")
	t.Setenv("RECONCILE_ENABLED", "false")
	t.Setenv("DEFAULT_TIMEZONE", "Mars/Olympus")

	cfg := Load()

	if cfg.ListenAddr != ":9000" {
		t.Fatalf("expected listen addr :9000, got %q", cfg.ListenAddr)
	}
	if cfg.StarterMissionLimit != 5 {
		t.Fatalf("expected starter limit 5, got %d", cfg.StarterMissionLimit)
	}
	if cfg.ResolverTimeout != 3*time.Second {
		t.Fatalf("invalid duration should fall back, got %s", cfg.ResolverTimeout)
	}
	if cfg.BatchConcurrency != 4 {
		t.Fatalf("negative concurrency should fall back, got %d", cfg.BatchConcurrency)
	}
	if cfg.ReconcileEnabled {
		t.Fatal("expected reconciliation disabled")
	}
	loc, err := cfg.Location()
	if err == nil {
		t.Fatal("expected error for unknown timezone")
	}
	if loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", loc)
	}
}
