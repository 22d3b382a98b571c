package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "ragdesk.log")

	l := NewLogger(Options{Console: &console, LogFile: path})
	l.Component("poller").Info().Int("progress", 40).Msg("tick")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !strings.Contains(console.String(), "tick") {
		t.Errorf("console output missing message: %q", console.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log file line is not JSON: %v (%q)", err, data)
	}
	if entry["component"] != "poller" || entry["message"] != "tick" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["progress"] != float64(40) {
		t.Errorf("progress field = %v, want 40", entry["progress"])
	}
}

func TestSetOutputKeepsFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragdesk.log")
	l := NewLogger(Options{Console: &bytes.Buffer{}, LogFile: path})

	var redirected bytes.Buffer
	l.SetOutput(&redirected)
	l.Warnf("retrying %s", "a.pdf")
	l.Close()

	if !strings.Contains(redirected.String(), "retrying a.pdf") {
		t.Errorf("redirected output missing message: %q", redirected.String())
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "retrying a.pdf") {
		t.Errorf("file sink lost after SetOutput: %q", data)
	}
}

func TestNopDiscards(t *testing.T) {
	l := NewNop()
	l.Error().Msg("ignored")
	if err := l.Close(); err != nil {
		t.Errorf("Close on nop logger = %v", err)
	}
}
