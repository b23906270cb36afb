package main

import (
	"testing"

	"laroza/backend/internal/config"
)

func strongConfig() config.Config {
	return config.Config{
		SessionSecret: "0123456789abcdef0123456789abcdef",
		Employees:     []string{"heba"},
		Timezone:      "UTC",
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	cfg := strongConfig()
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected config without a pin to pass, got %v", err)
	}

	cfg.ManagerPIN = "739154"
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected strong pin to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"short secret":   func(c *config.Config) { c.SessionSecret = "short" },
		"no employees":   func(c *config.Config) { c.Employees = nil },
		"bad timezone":   func(c *config.Config) { c.Timezone = "Mars/Olympus" },
		"short pin":      func(c *config.Config) { c.ManagerPIN = "7391" },
		"letters in pin": func(c *config.Config) { c.ManagerPIN = "73915a" },
		"sequential pin": func(c *config.Config) { c.ManagerPIN = "345678" },
		"repeated pin":   func(c *config.Config) { c.ManagerPIN = "999999" },
		"common pin":     func(c *config.Config) { c.ManagerPIN = "121212" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := strongConfig()
			mutate(&cfg)
			if err := validateSecurityConfig(cfg); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}
