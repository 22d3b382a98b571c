// Package config provides configuration management for ragdesk.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/ragdesk/ragdesk/internal/constants"
)

// Config is the client configuration.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\ragdesk\config
//   - Unix: ~/.config/ragdesk/config
//
// INI format:
//
//	[backend]
//	api_url = http://localhost:8000
//	api_retry_max = 3
//	rate_per_sec = 20
//	burst = 40
//
//	[proxy]
//	mode = no-proxy
//
//	[upload]
//	retries = 3
//	transfer_band = 80
//	concurrency = 0
//
//	[ingest]
//	poll_interval = 600ms
//	poll_max_duration = 10m
//	settle_delay = 800ms
//
//	[session]
//	file = /home/me/.config/ragdesk/session
//
//	[notifications]
//	enabled = true
//
//	[logging]
//	file =
type Config struct {
	// Backend connection
	APIBaseURL  string
	APIRetryMax int
	RatePerSec  float64
	Burst       float64

	// Proxy settings
	ProxyMode     string // "no-proxy", "system", "basic", "ntlm"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy

	// Upload settings
	UploadRetries     int
	TransferBand      int // percentage ceiling reached by the network transfer
	UploadConcurrency int // parallel transfers per batch (0 = derive from CPU count)

	// Ingestion polling
	PollInterval    time.Duration
	PollMaxDuration time.Duration
	SettleDelay     time.Duration

	// SessionFile holds the persisted user identity
	SessionFile string

	// Notifications toggles desktop notifications when a batch settles
	Notifications bool

	// LogFile enables a rotating JSON log sink (empty = console only)
	LogFile string
}

// Validation errors
var (
	ErrMissingAPIURL       = errors.New("api_url is required")
	ErrInvalidProxyMode    = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost    = errors.New("proxy host is required for basic and ntlm modes")
	ErrInvalidPollInterval = errors.New("poll_interval out of range")
	ErrInvalidPollBudget   = errors.New("poll_max_duration must be greater than poll_interval")
	ErrInvalidTransferBand = errors.New("transfer_band must be between 1 and 99")
	ErrInvalidRetries      = errors.New("upload retries must be at least 1")
	ErrInvalidConcurrency  = fmt.Errorf("upload concurrency must be between 0 and %d", constants.AbsoluteMaxUploads)
)

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		APIBaseURL:      "http://localhost:8000",
		APIRetryMax:     constants.DefaultAPIRetryMax,
		RatePerSec:      constants.DefaultRatePerSec,
		Burst:           constants.DefaultBurst,
		ProxyMode:       "no-proxy",
		UploadRetries:   constants.DefaultUploadRetries,
		TransferBand:    constants.TransferBandCeiling,
		PollInterval:    constants.DefaultPollInterval,
		PollMaxDuration: constants.DefaultPollMaxDuration,
		SettleDelay:     constants.DefaultSettleDelay,
		SessionFile:     DefaultSessionPath(),
		Notifications:   true,
	}
}

// Load reads configuration from an INI file.
// If the file doesn't exist, returns defaults and no error.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil // Return defaults if we can't determine path
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	backend := iniFile.Section("backend")
	cfg.APIBaseURL = backend.Key("api_url").MustString(cfg.APIBaseURL)
	cfg.APIRetryMax = backend.Key("api_retry_max").MustInt(cfg.APIRetryMax)
	cfg.RatePerSec = backend.Key("rate_per_sec").MustFloat64(cfg.RatePerSec)
	cfg.Burst = backend.Key("burst").MustFloat64(cfg.Burst)

	proxy := iniFile.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(0)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.ProxyPassword = proxy.Key("password").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()

	upload := iniFile.Section("upload")
	cfg.UploadRetries = upload.Key("retries").MustInt(cfg.UploadRetries)
	cfg.TransferBand = upload.Key("transfer_band").MustInt(cfg.TransferBand)
	cfg.UploadConcurrency = upload.Key("concurrency").MustInt(cfg.UploadConcurrency)

	ingest := iniFile.Section("ingest")
	cfg.PollInterval = ingest.Key("poll_interval").MustDuration(cfg.PollInterval)
	cfg.PollMaxDuration = ingest.Key("poll_max_duration").MustDuration(cfg.PollMaxDuration)
	cfg.SettleDelay = ingest.Key("settle_delay").MustDuration(cfg.SettleDelay)

	cfg.SessionFile = iniFile.Section("session").Key("file").MustString(cfg.SessionFile)
	cfg.Notifications = iniFile.Section("notifications").Key("enabled").MustBool(cfg.Notifications)
	cfg.LogFile = iniFile.Section("logging").Key("file").String()

	return cfg, nil
}

// ApplyEnv overrides file values with RAGDESK_* environment variables.
func (cfg *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("RAGDESK_API_URL")); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("RAGDESK_SESSION_FILE")); v != "" {
		cfg.SessionFile = v
	}
	if v := strings.TrimSpace(os.Getenv("RAGDESK_LOG_FILE")); v != "" {
		cfg.LogFile = v
	}
}

// Save writes configuration to an INI file.
// Creates parent directories if they don't exist.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	sections := []struct {
		name string
		keys [][2]string
	}{
		{"backend", [][2]string{
			{"api_url", cfg.APIBaseURL},
			{"api_retry_max", fmt.Sprintf("%d", cfg.APIRetryMax)},
			{"rate_per_sec", fmt.Sprintf("%g", cfg.RatePerSec)},
			{"burst", fmt.Sprintf("%g", cfg.Burst)},
		}},
		{"proxy", [][2]string{
			{"mode", cfg.ProxyMode},
			{"host", cfg.ProxyHost},
			{"port", fmt.Sprintf("%d", cfg.ProxyPort)},
			{"user", cfg.ProxyUser},
			{"no_proxy", cfg.NoProxy},
		}},
		{"upload", [][2]string{
			{"retries", fmt.Sprintf("%d", cfg.UploadRetries)},
			{"transfer_band", fmt.Sprintf("%d", cfg.TransferBand)},
			{"concurrency", fmt.Sprintf("%d", cfg.UploadConcurrency)},
		}},
		{"ingest", [][2]string{
			{"poll_interval", cfg.PollInterval.String()},
			{"poll_max_duration", cfg.PollMaxDuration.String()},
			{"settle_delay", cfg.SettleDelay.String()},
		}},
		{"session", [][2]string{{"file", cfg.SessionFile}}},
		{"notifications", [][2]string{{"enabled", fmt.Sprintf("%t", cfg.Notifications)}}},
		{"logging", [][2]string{{"file", cfg.LogFile}}},
	}
	for _, s := range sections {
		sec, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.keys {
			sec.Key(kv[0]).SetValue(kv[1])
		}
	}

	// The proxy password is never persisted; it is supplied at runtime.
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the client cannot run with.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return ErrMissingAPIURL
	}
	switch strings.ToLower(cfg.ProxyMode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if cfg.ProxyHost == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}
	if cfg.PollInterval < constants.MinPollInterval || cfg.PollInterval > constants.MaxPollInterval {
		return ErrInvalidPollInterval
	}
	if cfg.PollMaxDuration <= cfg.PollInterval {
		return ErrInvalidPollBudget
	}
	if cfg.TransferBand < 1 || cfg.TransferBand > 99 {
		return ErrInvalidTransferBand
	}
	if cfg.UploadRetries < 1 {
		return ErrInvalidRetries
	}
	if cfg.UploadConcurrency < 0 || cfg.UploadConcurrency > constants.AbsoluteMaxUploads {
		return ErrInvalidConcurrency
	}
	return nil
}
