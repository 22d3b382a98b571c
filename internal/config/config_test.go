package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.TransferBand != 80 {
		t.Errorf("expected default TransferBand 80, got %d", cfg.TransferBand)
	}
	if cfg.PollInterval != 600*time.Millisecond {
		t.Errorf("expected default PollInterval 600ms, got %v", cfg.PollInterval)
	}
	if cfg.SettleDelay != 800*time.Millisecond {
		t.Errorf("expected default SettleDelay 800ms, got %v", cfg.SettleDelay)
	}
	if cfg.ProxyMode != "no-proxy" {
		t.Errorf("expected default ProxyMode no-proxy, got %s", cfg.ProxyMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIBaseURL != Default().APIBaseURL {
		t.Errorf("expected default api url, got %s", cfg.APIBaseURL)
	}
}

func TestSaveAndLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config")

	cfg := Default()
	cfg.APIBaseURL = "https://rag.example.com"
	cfg.ProxyMode = "basic"
	cfg.ProxyHost = "proxy.local"
	cfg.ProxyPort = 3128
	cfg.ProxyPassword = "secret"
	cfg.UploadRetries = 5
	cfg.TransferBand = 70
	cfg.UploadConcurrency = 4
	cfg.PollInterval = 500 * time.Millisecond
	cfg.PollMaxDuration = 2 * time.Minute
	cfg.SettleDelay = 0
	cfg.SessionFile = "/tmp/ragdesk-session"
	cfg.Notifications = false

	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.APIBaseURL != cfg.APIBaseURL {
		t.Errorf("APIBaseURL mismatch: expected %s, got %s", cfg.APIBaseURL, loaded.APIBaseURL)
	}
	if loaded.ProxyHost != "proxy.local" || loaded.ProxyPort != 3128 {
		t.Errorf("proxy mismatch: got %s:%d", loaded.ProxyHost, loaded.ProxyPort)
	}
	if loaded.ProxyPassword != "" {
		t.Error("proxy password must not be persisted")
	}
	if loaded.UploadRetries != 5 {
		t.Errorf("UploadRetries mismatch: got %d", loaded.UploadRetries)
	}
	if loaded.TransferBand != 70 {
		t.Errorf("TransferBand mismatch: got %d", loaded.TransferBand)
	}
	if loaded.UploadConcurrency != 4 {
		t.Errorf("UploadConcurrency mismatch: got %d", loaded.UploadConcurrency)
	}
	if loaded.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval mismatch: got %v", loaded.PollInterval)
	}
	if loaded.PollMaxDuration != 2*time.Minute {
		t.Errorf("PollMaxDuration mismatch: got %v", loaded.PollMaxDuration)
	}
	if loaded.SettleDelay != 0 {
		t.Errorf("SettleDelay mismatch: got %v", loaded.SettleDelay)
	}
	if loaded.Notifications {
		t.Error("Notifications should be false")
	}
}

func TestLoadInvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(configPath, []byte("[backend\napi_url = x"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(configPath); err == nil {
		t.Error("expected error for malformed INI")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RAGDESK_API_URL", "http://env.example:9000")
	t.Setenv("RAGDESK_SESSION_FILE", "/tmp/env-session")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.APIBaseURL != "http://env.example:9000" {
		t.Errorf("expected env api url, got %s", cfg.APIBaseURL)
	}
	if cfg.SessionFile != "/tmp/env-session" {
		t.Errorf("expected env session file, got %s", cfg.SessionFile)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(c *Config) {}, nil},
		{"missing url", func(c *Config) { c.APIBaseURL = " " }, ErrMissingAPIURL},
		{"bad proxy mode", func(c *Config) { c.ProxyMode = "socks" }, ErrInvalidProxyMode},
		{"ntlm without host", func(c *Config) { c.ProxyMode = "ntlm" }, ErrMissingProxyHost},
		{"poll too fast", func(c *Config) { c.PollInterval = time.Millisecond }, ErrInvalidPollInterval},
		{"budget below interval", func(c *Config) { c.PollMaxDuration = 100 * time.Millisecond }, ErrInvalidPollBudget},
		{"band zero", func(c *Config) { c.TransferBand = 0 }, ErrInvalidTransferBand},
		{"band full", func(c *Config) { c.TransferBand = 100 }, ErrInvalidTransferBand},
		{"no retries", func(c *Config) { c.UploadRetries = 0 }, ErrInvalidRetries},
		{"negative concurrency", func(c *Config) { c.UploadConcurrency = -1 }, ErrInvalidConcurrency},
		{"concurrency too high", func(c *Config) { c.UploadConcurrency = 1000 }, ErrInvalidConcurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}
