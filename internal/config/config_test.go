package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("got %+v, want defaults", cfg)
	}
	if cfg.TickInterval() != time.Second/60 {
		t.Fatalf("tick interval = %v", cfg.TickInterval())
	}
	if cfg.IdleTimeout() != 5*time.Minute {
		t.Fatalf("idle timeout = %v", cfg.IdleTimeout())
	}
	if cfg.KeepAlive() != 5*time.Second {
		t.Fatalf("keepalive = %v", cfg.KeepAlive())
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
broker_url = "tcp://broker.example:1883"
winning_score = 11
username = "court1"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BrokerURL != "tcp://broker.example:1883" || cfg.WinningScore != 11 || cfg.Username != "court1" {
		t.Fatalf("file keys not applied: %+v", cfg)
	}
	// Keys absent from the file keep their defaults.
	if cfg.TickRate != 60 || cfg.QoS != 1 || cfg.LogLevel != "info" {
		t.Fatalf("defaults clobbered: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, `broker_url = "tcp://from-file:1883"`)
	t.Setenv("PONG_BROKER_URL", "tcp://from-env:1883")
	t.Setenv("PONG_TICK_RATE", "120")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BrokerURL != "tcp://from-env:1883" {
		t.Fatalf("broker = %q, want the env value", cfg.BrokerURL)
	}
	if cfg.TickRate != 120 {
		t.Fatalf("tick rate = %d, want 120", cfg.TickRate)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, `borker_url = "tcp://x:1883"`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Fatalf("err = %v, want unknown-keys error", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty broker", func(c *Config) { c.BrokerURL = " " }},
		{"qos too high", func(c *Config) { c.QoS = 3 }},
		{"zero tick rate", func(c *Config) { c.TickRate = 0 }},
		{"zero keepalive", func(c *Config) { c.KeepAliveSec = 0 }},
		{"zero idle timeout", func(c *Config) { c.IdleTimeoutSec = 0 }},
		{"zero winning score", func(c *Config) { c.WinningScore = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}
