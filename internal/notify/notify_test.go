package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ragdesk/ragdesk/internal/events"
)

type sent struct {
	title, message string
}

type recorder struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (r *recorder) send(title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{title, message})
	return r.err
}

func (r *recorder) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.msgs...)
}

func newRecordingNotifier(cfg *Config) (*Notifier, *recorder) {
	n := NewNotifier(cfg, nil)
	rec := &recorder{}
	n.send = rec.send
	return n, rec
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Enabled {
		t.Error("Expected Enabled to be true by default")
	}
	if !cfg.ShowBatchComplete {
		t.Error("Expected ShowBatchComplete to be true by default")
	}
	if !cfg.ShowBatchFailed {
		t.Error("Expected ShowBatchFailed to be true by default")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10c", 10, "exactly10c"},
		{"this is a long string", 10, "this is..."},
		{"", 10, ""},
		{"abc", 3, "abc"},
		{"abcd", 3, "..."},
	}

	for _, tt := range tests {
		result := truncate(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestBatchComplete(t *testing.T) {
	n, rec := newRecordingNotifier(nil)

	n.BatchComplete(1)
	n.BatchComplete(3)

	msgs := rec.all()
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(msgs))
	}
	if msgs[0].message != "1 file uploaded and ingested." {
		t.Errorf("Unexpected message: %q", msgs[0].message)
	}
	if msgs[1].message != "3 files uploaded and ingested." {
		t.Errorf("Unexpected message: %q", msgs[1].message)
	}
}

func TestBatchFailedTruncatesError(t *testing.T) {
	n, rec := newRecordingNotifier(nil)

	n.BatchFailed(1, 2, strings.Repeat("x", 300))

	msgs := rec.all()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(msgs))
	}
	if !strings.HasPrefix(msgs[0].message, "1 of 2 files failed:\n") {
		t.Errorf("Unexpected message: %q", msgs[0].message)
	}
	if !strings.HasSuffix(msgs[0].message, "...") {
		t.Error("Expected long error to be truncated")
	}
}

func TestDisabledNotifierIsSilent(t *testing.T) {
	n, rec := newRecordingNotifier(&Config{Enabled: false, ShowBatchComplete: true, ShowBatchFailed: true})

	n.BatchComplete(2)
	n.BatchFailed(1, 2, "boom")
	if len(rec.all()) != 0 {
		t.Error("Disabled notifier sent notifications")
	}

	n.SetEnabled(true)
	if !n.IsEnabled() {
		t.Fatal("SetEnabled(true) did not enable")
	}
	n.BatchComplete(2)
	if len(rec.all()) != 1 {
		t.Error("Expected notification after enabling")
	}
}

func TestPerKindToggles(t *testing.T) {
	n, rec := newRecordingNotifier(&Config{Enabled: true, ShowBatchComplete: false, ShowBatchFailed: true})

	n.BatchComplete(2)
	n.BatchFailed(1, 1, "")

	msgs := rec.all()
	if len(msgs) != 1 || msgs[0].message != "1 of 1 file failed" {
		t.Errorf("Unexpected notifications: %+v", msgs)
	}
}

func TestSendErrorIsSwallowed(t *testing.T) {
	n, rec := newRecordingNotifier(nil)
	rec.err = errors.New("no dbus")

	n.BatchComplete(1) // must not panic
	if len(rec.all()) != 1 {
		t.Error("Expected the send to be attempted")
	}
}

func TestWatchReactsToSettledStates(t *testing.T) {
	n, rec := newRecordingNotifier(nil)

	ch := make(chan events.Event, 4)
	ch <- &events.BatchEvent{BaseEvent: events.BaseEvent{EventType: events.EventBatchState}, NewState: "polling", Items: 2}
	ch <- &events.BatchEvent{BaseEvent: events.BaseEvent{EventType: events.EventBatchState}, NewState: "settled_done", Items: 2}
	ch <- &events.BatchEvent{BaseEvent: events.BaseEvent{EventType: events.EventBatchState}, NewState: "settled_failed", Items: 3, Failed: 1, Error: errors.New("poll timed out")}
	ch <- &events.FileListEvent{BaseEvent: events.BaseEvent{EventType: events.EventFileListRefreshed}}
	close(ch)

	done := make(chan struct{})
	go func() {
		n.Watch(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after channel close")
	}

	msgs := rec.all()
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 notifications, got %+v", msgs)
	}
	if msgs[0].message != "2 files uploaded and ingested." {
		t.Errorf("Unexpected completion message: %q", msgs[0].message)
	}
	if msgs[1].message != "1 of 3 files failed:\npoll timed out" {
		t.Errorf("Unexpected failure message: %q", msgs[1].message)
	}
}
