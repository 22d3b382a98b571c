package transfer

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/models"
)

// fakeBackend is an in-memory Backend with scriptable failures.
type fakeBackend struct {
	mu            sync.Mutex
	failUploads   map[string]error
	uploadGate    chan struct{}
	progress      func(ctx context.Context, call int) (int, error)
	processErr    error
	manifests     [][]models.ManifestEntry
	uploads       []string
	progressCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{failUploads: make(map[string]error)}
}

func (f *fakeBackend) setProgress(seq ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = func(_ context.Context, call int) (int, error) {
		if call > len(seq) {
			return seq[len(seq)-1], nil
		}
		return seq[call-1], nil
	}
}

func (f *fakeBackend) UploadFile(ctx context.Context, userID string, req api.UploadRequest, onProgress func(int)) error {
	f.mu.Lock()
	gate := f.uploadGate
	failErr := f.failUploads[req.Filename]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if _, err := io.Copy(io.Discard, req.Body); err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(50)
	}
	if failErr != nil {
		return failErr
	}
	if onProgress != nil {
		onProgress(100)
	}

	f.mu.Lock()
	f.uploads = append(f.uploads, req.Filename)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) ProcessFiles(ctx context.Context, userID string, entries []models.ManifestEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processErr != nil {
		return f.processErr
	}
	f.manifests = append(f.manifests, entries)
	return nil
}

func (f *fakeBackend) GetProgress(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	f.progressCalls++
	call := f.progressCalls
	fn := f.progress
	f.mu.Unlock()

	if fn == nil {
		return 100, nil
	}
	return fn(ctx, call)
}

func (f *fakeBackend) getManifests() [][]models.ManifestEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]models.ManifestEntry(nil), f.manifests...)
}

func (f *fakeBackend) getProgressCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progressCalls
}

// countingRefresher records Refresh calls.
type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitOutcome(t *testing.T, o *Orchestrator) Outcome {
	t.Helper()
	select {
	case out, ok := <-o.Done():
		if !ok {
			t.Fatal("Done channel closed")
		}
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}
	return Outcome{}
}
