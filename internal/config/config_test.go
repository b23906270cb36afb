package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakSecretDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SessionSecret != "" {
		t.Fatalf("expected empty SESSION_SECRET when unset, got %q", cfg.SessionSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if cfg.LockWait != 3*time.Second || cfg.LockTTL != 10*time.Second {
		t.Fatalf("unexpected lock timings %v/%v", cfg.LockWait, cfg.LockTTL)
	}
	if cfg.StrictExchangeStock {
		t.Fatalf("expected permissive exchanges by default")
	}
	if len(cfg.Employees) != 3 {
		t.Fatalf("expected default employee list, got %v", cfg.Employees)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("EMPLOYEES", " sara , , omar ")
	t.Setenv("STRICT_EXCHANGE_STOCK", "true")
	t.Setenv("PRODUCT_CACHE_TTL", "1m")
	t.Setenv("TIMEZONE", "Asia/Riyadh")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Employees) != 2 || cfg.Employees[0] != "sara" || cfg.Employees[1] != "omar" {
		t.Fatalf("unexpected employees %v", cfg.Employees)
	}
	if !cfg.StrictExchangeStock || cfg.ProductCacheTTL != time.Minute {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if _, err := cfg.Location(); err != nil {
		t.Fatalf("location: %v", err)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("LOCK_WAIT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected malformed duration to fail")
	}
}
