package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.HeartbeatInterval != 15*time.Second {
		t.Fatalf("HeartbeatInterval = %v, want 15s", cfg.HeartbeatInterval)
	}
	if cfg.AIProvider != "auto" {
		t.Fatalf("AIProvider = %q, want auto", cfg.AIProvider)
	}
	if cfg.SearchRateLimit != 30 {
		t.Fatalf("SearchRateLimit = %d, want 30", cfg.SearchRateLimit)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad heartbeat", key: "APP_HEARTBEAT_INTERVAL", value: "10ms"},
		{name: "bad provider", key: "AI_PROVIDER", value: "cohere"},
		{name: "bad limit", key: "SEARCH_RATE_LIMIT", value: "-1"},
		{name: "unparsable duration", key: "APP_SHUTDOWN_TIMEOUT", value: "soon"},
		{name: "unparsable bool", key: "APP_ALLOW_ANY_ORIGIN", value: "maybe"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%s succeeded, want error", tc.key, tc.value)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("APP_HEARTBEAT_INTERVAL", "5s")
	t.Setenv("AI_PROVIDER", "mock")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want :9090", cfg.BindAddr)
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Fatalf("HeartbeatInterval = %v, want 5s", cfg.HeartbeatInterval)
	}
	if cfg.AIProvider != "mock" {
		t.Fatalf("AIProvider = %q, want mock", cfg.AIProvider)
	}
}
