package cli

import (
	"testing"

	"github.com/spf13/cobra"
)

// TestUploadShortcut tests the upload shortcut command
func TestUploadShortcut(t *testing.T) {
	cmd := newUploadShortcut()
	if cmd.Name() != "upload" {
		t.Errorf("Expected name 'upload', got '%s'", cmd.Name())
	}
	if cmd.RunE == nil {
		t.Error("RunE function is nil")
	}

	for _, name := range []string{"category", "recursive", "include", "exclude", "hidden", "no-wait"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("--%s flag not found", name)
		}
	}
}

// TestLsShortcut tests the ls shortcut command
func TestLsShortcut(t *testing.T) {
	cmd := newLsShortcut()
	if cmd.Use != "ls" {
		t.Errorf("Expected Use='ls', got '%s'", cmd.Use)
	}
	for _, name := range []string{"category", "uncategorized", "include", "exclude", "search"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("--%s flag not found", name)
		}
	}
}

// TestAddShortcuts tests that shortcuts are added to root command
func TestAddShortcuts(t *testing.T) {
	rootCmd := &cobra.Command{Use: "root"}
	AddShortcuts(rootCmd)

	found := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		found[cmd.Name()] = true
	}
	for _, expected := range []string{"upload", "ls"} {
		if !found[expected] {
			t.Errorf("Shortcut '%s' not found", expected)
		}
	}
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()
	AddCommands(root)

	paths := [][]string{
		{"files", "upload"},
		{"files", "list"},
		{"files", "delete"},
		{"category", "list"},
		{"category", "set"},
		{"category", "clear"},
		{"category", "delete"},
		{"status"},
		{"session", "show"},
		{"config", "init"},
		{"upload"},
		{"ls"},
	}
	for _, p := range paths {
		cmd, _, err := root.Find(p)
		if err != nil || cmd == root {
			t.Errorf("command %v not found", p)
		}
	}
}
