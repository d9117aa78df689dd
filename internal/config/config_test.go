package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "HEALTH_API_BASE_URL", "HEALTH_API_TOKEN", "HEALTH_API_TIMEOUT", "DEV_BACKEND_ADDR", "APP_ENV", "LOG_LEVEL", "ARK_MODEL", "ARK_API_KEY"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":8090" {
		t.Fatalf("unexpected bridge addr: %s", cfg.Server.Addr)
	}
	if cfg.Backend.BaseURL != "http://localhost:8080/api" {
		t.Fatalf("unexpected base url: %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 60*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Backend.Timeout)
	}
	if cfg.DevBackend.Addr != ":8080" {
		t.Fatalf("unexpected dev backend addr: %s", cfg.DevBackend.Addr)
	}
	if !cfg.Log.IsDevelopment() || cfg.Log.Level != "info" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.AI.Enabled() {
		t.Fatal("AI must be disabled without credentials")
	}
}

func TestLoadBackendOverrides(t *testing.T) {
	t.Setenv("HEALTH_API_BASE_URL", "https://health.example.com/api/")
	t.Setenv("HEALTH_API_TOKEN", " secret ")
	t.Setenv("HEALTH_API_TIMEOUT", "15")
	t.Setenv("PORT", "127.0.0.1:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Backend.BaseURL != "https://health.example.com/api" {
		t.Fatalf("trailing slash should be trimmed, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Token != "secret" {
		t.Fatalf("unexpected token %q", cfg.Backend.Token)
	}
	if cfg.Backend.Timeout != 15*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Backend.Timeout)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %s", cfg.Server.Addr)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"HEALTH_API_BASE_URL": "not a url",
		"HEALTH_API_TIMEOUT":  "soon",
		"PORT":                "80 80",
		"ARK_TEMPERATURE":     "warm",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}
