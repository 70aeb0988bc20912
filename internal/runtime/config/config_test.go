package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	errspkg "github.com/drblury/opsflow/internal/runtime/errors"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ServiceName != "opsflow" {
		t.Errorf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.FailureRetention != 10000 {
		t.Errorf("expected retention 10000, got %d", cfg.FailureRetention)
	}
	if cfg.DropFailedTraces {
		t.Error("expected trace failure to be advisory by default")
	}
	if cfg.Poll.Interval != 5*time.Minute {
		t.Errorf("expected 5m poll interval, got %v", cfg.Poll.Interval)
	}
	if cfg.Poll.MaxResults != 5 {
		t.Errorf("expected 5 max results, got %d", cfg.Poll.MaxResults)
	}
	if cfg.Gmail.Query != "label:INBOX" {
		t.Errorf("expected inbox query, got %q", cfg.Gmail.Query)
	}
	if cfg.Gmail.Enabled() {
		t.Error("expected gmail to be inert without secrets")
	}
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"OPSFLOW_LOG_LEVEL":          "debug",
		"OPSFLOW_DROP_FAILED_TRACES": "true",
		"OPSFLOW_POLL_INTERVAL":      "30s",
		"OPSFLOW_WEBUI_CORS_ORIGINS": "https://a.example,https://b.example",
		"GMAIL_CLIENT_ID":            "id",
		"GMAIL_CLIENT_SECRET":        "secret",
		"GMAIL_REFRESH_TOKEN":        "token",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != "debug" || !cfg.DropFailedTraces || cfg.Poll.Interval != 30*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.WebUICORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 cors origins, got %v", cfg.WebUICORSAllowedOrigins)
	}
	if !cfg.Gmail.Enabled() {
		t.Fatal("expected gmail to be enabled with all secrets")
	}
}

func TestGmailMissingSecrets(t *testing.T) {
	g := GmailConfig{ClientID: "id"}
	if g.Enabled() {
		t.Fatal("expected partial credentials to be inert")
	}
	missing := g.Missing()
	if len(missing) != 2 || missing[0] != "GMAIL_CLIENT_SECRET" || missing[1] != "GMAIL_REFRESH_TOKEN" {
		t.Fatalf("unexpected missing list: %v", missing)
	}
}

func TestLoadFromRejectsMalformedValue(t *testing.T) {
	_, err := LoadFrom(map[string]string{"OPSFLOW_POLL_INTERVAL": "soon"})
	if err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadFromRejectsInvalidRanges(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"OPSFLOW_FAILURE_RETENTION": "0",
		"OPSFLOW_METRICS_PORT":      "70000",
	})
	var cfgErr errspkg.ConfigValidationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigValidationError, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"failure retention", "metrics: invalid port 70000"} {
		if !strings.Contains(msg, fragment) {
			t.Errorf("expected %q in %q", fragment, msg)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"negative buffer", func(c *Config) { c.BusBuffer = -1 }, "bus: buffer cannot be negative"},
		{"negative close timeout", func(c *Config) { c.BusCloseTimeout = -time.Second }, "bus: close timeout"},
		{"zero poll interval", func(c *Config) { c.Poll.Interval = 0 }, "poll: interval must be positive"},
		{"zero max results", func(c *Config) { c.Poll.MaxResults = 0 }, "poll: max results"},
		{"negative dedup window", func(c *Config) { c.Poll.DedupWindow = -time.Second }, "poll: dedup window"},
		{"bad webui port", func(c *Config) { c.WebUIPort = -5 }, "webui: invalid port -5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Gmail = GmailConfig{ClientID: "client-id", ClientSecret: "s3cret", RefreshToken: "r3fresh"}

	out := cfg.String()
	if strings.Contains(out, "s3cret") || strings.Contains(out, "r3fresh") {
		t.Fatalf("expected secrets to be redacted: %s", out)
	}
	if !strings.Contains(out, "client-id") {
		t.Fatalf("expected client id to remain visible: %s", out)
	}
	if cfg.Gmail.ClientSecret != "s3cret" {
		t.Fatal("String must not mutate the original config")
	}
}
