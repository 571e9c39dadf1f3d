package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/gallery/internal/carousel"
	"github.com/lehigh-university-libraries/gallery/internal/engine"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gallery.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}
	if cfg.Client.Frames != 2 || cfg.Client.TickInterval != 2*time.Second || cfg.Client.Reconcile != engine.PolicyKeep {
		t.Errorf("Unexpected client defaults %+v", cfg.Client)
	}
	if cfg.Server.MetadataPath() != filepath.Join("data", "metadata") {
		t.Errorf("Unexpected metadata path %s", cfg.Server.MetadataPath())
	}
}

func TestLoadFileOverridesDefinedKeysOnly(t *testing.T) {
	t.Setenv(EnvFrames, "")
	path := writeConfig(t, `
[client]
server_url = "http://gallery.example:9000"
frames = 4
tick_interval = "500ms"
reconcile = "rollback"

[server]
addr = ":9000"
cors_origins = ["http://localhost:3000", " "]
keepalive = "5s"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Client.ServerURL != "http://gallery.example:9000" || cfg.Client.Frames != 4 {
		t.Errorf("Unexpected client config %+v", cfg.Client)
	}
	if cfg.Client.TickInterval != 500*time.Millisecond || cfg.Client.Reconcile != engine.PolicyRollback {
		t.Errorf("Unexpected client config %+v", cfg.Client)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.DataDir != "data" {
		t.Errorf("Unexpected server config %+v", cfg.Server)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.KeepAlive != 5*time.Second {
		t.Errorf("Unexpected server config %+v", cfg.Server)
	}
	if cfg.Server.MaxUploadBytes != 10*1024*1024 {
		t.Errorf("Expected default upload limit, got %d", cfg.Server.MaxUploadBytes)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := map[string]string{
		"unknown key":   "[client]\nframez = 3\n",
		"bad duration":  "[client]\ntick_interval = \"soon\"\n",
		"invalid toml":  "[client\n",
		"bad keepalive": "[server]\nkeepalive = \"1 minute\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Error("Expected an error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected an error for an explicit missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvServerURL: "http://env:1",
		EnvFrames:    "6",
		EnvReconcile: "rollback",
		EnvBucketURL: "mem://",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.Client.ServerURL != "http://env:1" || cfg.Client.Frames != 6 || cfg.Client.Reconcile != engine.PolicyRollback {
		t.Errorf("Unexpected client config %+v", cfg.Client)
	}
	if cfg.Server.BucketURL != "mem://" {
		t.Errorf("Expected bucket override, got %s", cfg.Server.BucketURL)
	}

	env[EnvFrames] = "many"
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err == nil || !strings.Contains(err.Error(), EnvFrames) {
		t.Errorf("Expected frames parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero frames", mutate: func(c *Config) { c.Client.Frames = 0 }},
		{name: "too many frames", mutate: func(c *Config) { c.Client.Frames = carousel.MaxSlots + 1 }},
		{name: "unknown policy", mutate: func(c *Config) { c.Client.Reconcile = "retry" }},
		{name: "zero tick", mutate: func(c *Config) { c.Client.TickInterval = 0 }},
		{name: "zero upload limit", mutate: func(c *Config) { c.Server.MaxUploadBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	cfg := Default()
	cfg.Client.Frames = 0
	if err := cfg.Validate(); !errors.Is(err, carousel.ErrInvalidSlotCount) {
		t.Errorf("Expected ErrInvalidSlotCount, got %v", err)
	}
}
