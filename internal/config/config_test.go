package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kiwari-pos/terminal/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8081" {
		t.Errorf("port: got %q", cfg.Port)
	}
	if cfg.PollInterval != 15*time.Second {
		t.Errorf("poll interval: got %v, want 15s", cfg.PollInterval)
	}
	if cfg.EventsBroker != "none" {
		t.Errorf("events broker: got %q", cfg.EventsBroker)
	}
}

func TestLoadYAMLOverlayAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "pos.yaml")
	yaml := "port: \"9000\"\npollInterval: 5s\nkafkaBrokers: [\"k1:9092\", \"k2:9092\"]\neventsBroker: kafka\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("env should win over file: got %q", cfg.Port)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("poll interval from file: got %v", cfg.PollInterval)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("kafka brokers: got %v", cfg.KafkaBrokers)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TERMINAL_PORT=7777\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("TERMINAL_PORT") })

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TerminalPort != "7777" {
		t.Errorf("terminal port: got %q, want 7777", cfg.TerminalPort)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POLL_INTERVAL", "soon")
	if _, err := config.Load(); err == nil {
		t.Error("expected error for bad POLL_INTERVAL")
	}

	t.Setenv("POLL_INTERVAL", "15s")
	t.Setenv("EVENTS_BROKER", "carrier-pigeon")
	if _, err := config.Load(); err == nil {
		t.Error("expected error for unknown broker")
	}
}
