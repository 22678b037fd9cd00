package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lendline/internal/config"
)

func TestDefaultParsesAndValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Listen == "" {
		t.Fatalf("expected listen address")
	}
	if len(cfg.Agents.Endpoints) == 0 {
		t.Fatalf("expected at least one agent endpoint")
	}
	if cfg.Agents.PollAttempts != 30 || cfg.Agents.PollInterval != "1s" {
		t.Fatalf("unexpected poll defaults: %d %q", cfg.Agents.PollAttempts, cfg.Agents.PollInterval)
	}
	if cfg.Router.DefaultAgent == "" {
		t.Fatalf("expected default agent")
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty endpoint", func(c *config.Config) { c.Agents.Endpoints = []string{""} }, "endpoints[0]"},
		{"bad duration", func(c *config.Config) { c.Agents.PollInterval = "soon" }, "poll_interval"},
		{"negative attempts", func(c *config.Config) { c.Agents.PollAttempts = -1 }, "poll_attempts"},
		{"bad creation mode", func(c *config.Config) { c.Lifecycle.CreationMode = "optimistic" }, "creation_mode"},
		{"webhook without url", func(c *config.Config) { c.Webhooks = []config.Webhook{{Events: []string{"*"}}} }, "webhooks[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDurationFallback(t *testing.T) {
	if d := config.Duration("", 5*time.Second); d != 5*time.Second {
		t.Fatalf("empty value should fall back, got %v", d)
	}
	if d := config.Duration("250ms", 5*time.Second); d != 250*time.Millisecond {
		t.Fatalf("parse failed, got %v", d)
	}
	if d := config.Duration("never", 5*time.Second); d != 5*time.Second {
		t.Fatalf("invalid value should fall back, got %v", d)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := config.Load(dir); err == nil || !strings.Contains(err.Error(), "config init") {
		t.Fatalf("expected hint to run config init, got %v", err)
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("LoadOptional on missing file: %v %+v", err, cfg)
	}
}

func TestLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lendline.yml")
	if got := config.Path(dir); got != path {
		t.Fatalf("unexpected config path %s", got)
	}
	if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Lifecycle.CreationMode != "best_effort" {
		t.Fatalf("unexpected creation mode %q", cfg.Lifecycle.CreationMode)
	}
	if len(cfg.Router.FallbackKeywords) == 0 {
		t.Fatalf("expected fallback keywords in template")
	}
}
