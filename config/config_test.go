package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":9000"

[Fees]
FeeBps = 100
FeeRecipient = "0x000000000000000000000000000000000000000f"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.DataDir == "" || cfg.DatabasePath == "" {
		t.Fatalf("defaults must fill storage paths: %+v", cfg)
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 || cfg.RateLimit.Burst <= 0 {
		t.Fatalf("defaults must fill rate limits: %+v", cfg.RateLimit)
	}
	if cfg.Fees.FeeBps != 100 {
		t.Fatalf("unexpected fee bps %d", cfg.Fees.FeeBps)
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "marketd.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress == "" {
		t.Fatalf("default config must set a listen address")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file must be written: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":9000"
LegacyField = true
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Fatalf("expected unknown-key rejection, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Fees.FeeBps = 10_001
	if err := Validate(cfg); err == nil {
		t.Fatalf("fee above 100%% must be rejected")
	}

	cfg = defaultConfig()
	cfg.Fees.FeeBps = 100
	cfg.Fees.FeeRecipient = "not-hex"
	if err := Validate(cfg); err == nil {
		t.Fatalf("invalid fee recipient must be rejected")
	}

	cfg = defaultConfig()
	cfg.Fees.FeeBps = 100
	cfg.Fees.FeeRecipient = "0x000000000000000000000000000000000000000f"
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x000000000000000000000000000000000000000f")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if addr[19] != 0x0f {
		t.Fatalf("unexpected address %x", addr)
	}
	if _, err := ParseAddress("0x1234"); err == nil {
		t.Fatalf("short address must be rejected")
	}
	if _, err := ParseAddress(""); err == nil {
		t.Fatalf("empty address must be rejected")
	}
}
