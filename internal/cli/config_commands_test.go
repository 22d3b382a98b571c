package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ragdesk/ragdesk/internal/config"
)

// TestConfigCmd tests the config command group
func TestConfigCmd(t *testing.T) {
	cmd := newConfigCmd()
	if cmd.Use != "config" {
		t.Errorf("Expected Use='config', got '%s'", cmd.Use)
	}

	expectedSubs := []string{"init", "show", "test", "path"}
	subcommands := cmd.Commands()
	if len(subcommands) != len(expectedSubs) {
		t.Errorf("Expected %d subcommands, got %d", len(expectedSubs), len(subcommands))
	}

	foundSubs := make(map[string]bool)
	for _, sub := range subcommands {
		foundSubs[sub.Name()] = true
		if sub.Short == "" {
			t.Errorf("Subcommand '%s' has no short description", sub.Name())
		}
		if sub.RunE == nil {
			t.Errorf("Subcommand '%s' has no RunE", sub.Name())
		}
	}
	for _, expected := range expectedSubs {
		if !foundSubs[expected] {
			t.Errorf("Subcommand '%s' not found", expected)
		}
	}
}

// TestConfigInit tests the config init command structure
func TestConfigInit(t *testing.T) {
	cmd := newConfigInitCmd()
	if cmd.Use != "init" {
		t.Errorf("Expected Use='init', got '%s'", cmd.Use)
	}
	if cmd.Flags().Lookup("force") == nil {
		t.Error("--force flag not found")
	}
}

func TestConfigInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")

	root := NewRootCmd()
	AddCommands(root)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	// url, poll interval, poll budget, no proxy
	root.SetIn(strings.NewReader("http://rag.internal:9000\n250ms\n\nn\n"))
	root.SetArgs([]string{"--config", path, "config", "init"})

	if err := root.Execute(); err != nil {
		t.Fatalf("config init failed: %v\n%s", err, out.String())
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if cfg.APIBaseURL != "http://rag.internal:9000" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.PollMaxDuration != config.Default().PollMaxDuration {
		t.Errorf("PollMaxDuration = %v, want default", cfg.PollMaxDuration)
	}
	if cfg.ProxyMode != "no-proxy" {
		t.Errorf("ProxyMode = %q", cfg.ProxyMode)
	}
}

func TestConfigInitKeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("[backend]\napi_url = http://keep\n"), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "--config", path, "config", "init")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "already exists") {
		t.Errorf("unexpected output: %s", out)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "http://keep") {
		t.Error("existing config was overwritten")
	}
}

func TestConfigShowMergesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-config")

	out, err := runCLI(t, "--config", path, "--api-url", "http://from-flag", "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "http://from-flag") {
		t.Errorf("flag URL not shown:\n%s", out)
	}
	if !strings.Contains(out, "file does not exist") {
		t.Errorf("missing-file note not shown:\n%s", out)
	}
}
