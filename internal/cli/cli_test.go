package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ragdesk/ragdesk/internal/config"
	"github.com/ragdesk/ragdesk/internal/models"
	"github.com/ragdesk/ragdesk/internal/progress"
	"github.com/ragdesk/ragdesk/internal/testutil"
)

const testUser = "user-1"

// runCLI executes the full command tree with args and returns its output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	AddCommands(root)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

// testConfig writes a config pointing at the fake with fast polling.
func testConfig(t *testing.T, fb *testutil.FakeBackend) string {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.APIBaseURL = fb.URL()
	cfg.APIRetryMax = 0
	cfg.PollInterval = 100 * time.Millisecond
	cfg.PollMaxDuration = 5 * time.Second
	cfg.SettleDelay = 10 * time.Millisecond
	cfg.Notifications = false
	cfg.SessionFile = filepath.Join(dir, "session")

	path := filepath.Join(dir, "config")
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func writeDocs(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("content of "+n), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestUploadIngestsAndTagsFiles(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetProgressSequence(testUser, 40, 100)
	fb.SetCategories(testUser, "Research")
	cfgPath := testConfig(t, fb)
	dir := writeDocs(t, "a.pdf", "b.md", "skip.tmp")

	out, err := runCLI(t, "--config", cfgPath, "--user", testUser,
		"upload", dir, "--exclude", "*.tmp", "--category", "research")
	if err != nil {
		t.Fatalf("upload failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 files uploaded and ingested") {
		t.Errorf("missing summary:\n%s", out)
	}

	if n := len(fb.Uploads()); n != 2 {
		t.Fatalf("got %d uploads, want 2", n)
	}
	manifests := fb.Manifests()
	if len(manifests) != 1 || len(manifests[0].Files) != 2 {
		t.Fatalf("unexpected manifests: %+v", manifests)
	}
	for _, entry := range manifests[0].Files {
		// The existing label's spelling is used.
		if entry.Category == nil || *entry.Category != "Research" {
			t.Errorf("%s sent with category %v, want Research", entry.Filename, entry.Category)
		}
	}
}

func TestUploadReportsFailedTransfer(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.FailUpload("bad.pdf", 413, -1)
	cfgPath := testConfig(t, fb)
	dir := writeDocs(t, "good.pdf", "bad.pdf")

	out, err := runCLI(t, "--config", cfgPath, "--user", testUser, "files", "upload", dir)
	if err == nil {
		t.Fatalf("expected failure, got success:\n%s", out)
	}
	if !strings.Contains(out, "✗ bad.pdf") {
		t.Errorf("failed file not reported:\n%s", out)
	}
	if !strings.Contains(out, "1 of 2 files failed") {
		t.Errorf("missing failure summary:\n%s", out)
	}

	// The good file was still submitted.
	manifests := fb.Manifests()
	if len(manifests) != 1 || len(manifests[0].Files) != 1 || manifests[0].Files[0].Filename != "good.pdf" {
		t.Errorf("unexpected manifests: %+v", manifests)
	}
}

func TestFilesListFilters(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetFiles(testUser,
		models.ServerFile{Filename: "a.pdf", Size: 2048, Category: models.StringPtr("Research")},
		models.ServerFile{Filename: "b.md", Size: 10},
		models.ServerFile{Filename: "c.pdf", Size: 10, Category: models.StringPtr("Legal")},
	)
	cfgPath := testConfig(t, fb)

	out, err := runCLI(t, "--config", cfgPath, "--user", testUser, "files", "list", "--category", "RESEARCH")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "a.pdf") || strings.Contains(out, "b.md") || strings.Contains(out, "c.pdf") {
		t.Errorf("category filter wrong:\n%s", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "--user", testUser, "ls", "--uncategorized")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "b.md") || strings.Contains(out, "a.pdf") {
		t.Errorf("uncategorized filter wrong:\n%s", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "--user", testUser, "ls", "--include", "*.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Filtered: 2 of 3") {
		t.Errorf("include filter wrong:\n%s", out)
	}
}

func TestFilesDeleteAll(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetFiles(testUser, models.ServerFile{Filename: "b.pdf"}, models.ServerFile{Filename: "a.pdf"})
	cfgPath := testConfig(t, fb)

	out, err := runCLI(t, "--config", cfgPath, "--user", testUser, "files", "delete", "--all", "--yes")
	if err != nil {
		t.Fatalf("delete failed: %v\n%s", err, out)
	}

	deletes := fb.Deletes()
	want := []string{testUser + "/a.pdf", testUser + "/b.pdf"}
	if len(deletes) != len(want) {
		t.Fatalf("deletes = %v, want %v", deletes, want)
	}
	for i := range want {
		if deletes[i] != want[i] {
			t.Errorf("delete %d = %s, want %s", i, deletes[i], want[i])
		}
	}
}

func TestFilesDeleteNeedsTarget(t *testing.T) {
	if _, err := runCLI(t, "files", "delete"); err == nil {
		t.Error("expected error without names or --all")
	}
}

func TestCategorySetAndDelete(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetFiles(testUser,
		models.ServerFile{Filename: "a.pdf"},
		models.ServerFile{Filename: "b.pdf", Category: models.StringPtr("HR Policies")},
	)
	cfgPath := testConfig(t, fb)

	out, err := runCLI(t, "--config", cfgPath, "--user", testUser, "category", "set", "a.pdf", "  hr   policies ")
	if err != nil {
		t.Fatalf("set failed: %v\n%s", err, out)
	}
	updates := fb.CategoryUpdates()
	if len(updates) != 1 || updates[0].Category == nil || *updates[0].Category != "HR Policies" {
		t.Fatalf("unexpected updates: %+v", updates)
	}

	out, err = runCLI(t, "--config", cfgPath, "--user", testUser, "category", "delete", "HR POLICIES")
	if err != nil {
		t.Fatalf("delete failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "from 2 files") {
		t.Errorf("unexpected output:\n%s", out)
	}
	updates = fb.CategoryUpdates()
	if len(updates) != 3 {
		t.Fatalf("got %d updates, want 3", len(updates))
	}
	for _, u := range updates[1:] {
		if u.Category != nil {
			t.Errorf("%s not cleared: %v", u.Filename, *u.Category)
		}
	}
}

func TestCategorySetUnknownFile(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	cfgPath := testConfig(t, fb)

	if _, err := runCLI(t, "--config", cfgPath, "--user", testUser, "category", "set", "nope.pdf", "x"); err == nil {
		t.Error("expected error for unknown file")
	}
	if len(fb.CategoryUpdates()) != 0 {
		t.Error("update sent for unknown file")
	}
}

func TestSessionShowCreatesIdentityOnce(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	cfgPath := testConfig(t, fb)

	first, err := runCLI(t, "--config", cfgPath, "session", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(first, "created now") {
		t.Errorf("first run did not create identity:\n%s", first)
	}

	second, err := runCLI(t, "--config", cfgPath, "session", "show")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(second, "created now") {
		t.Errorf("identity regenerated:\n%s", second)
	}
	idLine := func(s string) string { return strings.SplitN(s, "\n", 2)[0] }
	if idLine(first) != idLine(second) {
		t.Errorf("user id changed: %q vs %q", idLine(first), idLine(second))
	}
}

func TestStatus(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetProgressSequence(testUser, 42)
	cfgPath := testConfig(t, fb)

	out, err := runCLI(t, "--config", cfgPath, "--user", testUser, "status")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Ingestion progress: 42%") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestWatchIngestion(t *testing.T) {
	seq := []int{10, 60, 100}
	calls := 0
	fetch := func(context.Context) (int, error) {
		v := seq[calls]
		calls++
		return v, nil
	}

	if err := watchIngestion(context.Background(), progress.NewNoOpProgress(), time.Millisecond, fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("fetched %d times, want 3", calls)
	}

	boom := errors.New("boom")
	err := watchIngestion(context.Background(), progress.NewNoOpProgress(), time.Millisecond, func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestConfirm(t *testing.T) {
	tests := map[string]bool{
		"y\n":   true,
		"YES\n": true,
		"n\n":   false,
		"\n":    false,
		"":      false,
	}
	for in, want := range tests {
		var out bytes.Buffer
		got, err := confirm(strings.NewReader(in), &out, "Delete?")
		if err != nil {
			t.Fatalf("confirm(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("confirm(%q) = %v, want %v", in, got, want)
		}
	}
}
