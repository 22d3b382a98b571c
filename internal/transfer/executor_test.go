package transfer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ragdesk/ragdesk/internal/api"
	rhttp "github.com/ragdesk/ragdesk/internal/http"
	"github.com/ragdesk/ragdesk/internal/resources"
)

func TestExecutorPartialFailureIsolation(t *testing.T) {
	fb := newFakeBackend()
	cause := errors.New("disk on fire")
	fb.failUploads["two.pdf"] = cause

	b := NewBatch(nil)
	one := b.Add(memItem("one.pdf"))
	two := b.Add(memItem("two.pdf"))
	three := b.Add(memItem("three.pdf"))

	e := NewExecutor(fb, "u1", DefaultBands(), rhttp.Config{MaxRetries: 1}, nil)
	errs := e.Upload(context.Background(), b)

	if len(errs) != 1 {
		t.Fatalf("Expected 1 error, got %d: %v", len(errs), errs)
	}
	var te *api.TransferError
	if !errors.As(errs[0], &te) || te.Filename != "two.pdf" {
		t.Fatalf("Expected TransferError for two.pdf, got %v", errs[0])
	}
	if !errors.Is(errs[0], cause) {
		t.Errorf("TransferError does not wrap cause")
	}

	for _, id := range []string{one.ID, three.ID} {
		item, _ := b.Get(id)
		if item.Stage != StageProcessing || !item.Transferred || item.Progress != 80 {
			t.Errorf("%s: got stage=%s transferred=%v progress=%d, want processing/true/80",
				item.Name(), item.Stage, item.Transferred, item.Progress)
		}
	}

	failed, _ := b.Get(two.ID)
	if failed.Stage != StageFailed || failed.Transferred {
		t.Errorf("two.pdf: got stage=%s transferred=%v", failed.Stage, failed.Transferred)
	}
	if failed.Progress != 40 {
		t.Errorf("two.pdf: expected progress to stay at 40, got %d", failed.Progress)
	}
}

// flakyUploader fails the first n attempts with a retryable status.
type flakyUploader struct {
	failures int32
	attempts atomic.Int32
}

func (f *flakyUploader) UploadFile(ctx context.Context, userID string, req api.UploadRequest, onProgress func(int)) error {
	n := f.attempts.Add(1)
	if n <= f.failures {
		onProgress(60)
		return &api.StatusError{Op: "upload file", Code: 503}
	}
	onProgress(10)
	onProgress(100)
	return nil
}

func TestExecutorRetriesRetryableErrors(t *testing.T) {
	up := &flakyUploader{failures: 2}
	b := NewBatch(nil)
	item := b.Add(memItem("a.pdf"))

	e := NewExecutor(up, "u1", DefaultBands(), rhttp.Config{MaxRetries: 3, InitialDelay: 1}, nil)
	if errs := e.Upload(context.Background(), b); len(errs) != 0 {
		t.Fatalf("Expected success after retries, got %v", errs)
	}
	if got := up.attempts.Load(); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}

	got, _ := b.Get(item.ID)
	if got.Stage != StageProcessing || got.Progress != 80 {
		t.Errorf("Unexpected item: %s %d", got.Stage, got.Progress)
	}
}

func TestExecutorDoesNotRetryClientErrors(t *testing.T) {
	up := &rejectingUploader{}
	b := NewBatch(nil)
	b.Add(memItem("a.pdf"))

	e := NewExecutor(up, "u1", DefaultBands(), rhttp.Config{MaxRetries: 3, InitialDelay: 1}, nil)
	errs := e.Upload(context.Background(), b)
	if len(errs) != 1 {
		t.Fatalf("Expected 1 error, got %v", errs)
	}
	if got := up.attempts.Load(); got != 1 {
		t.Errorf("Expected a single attempt for a 413, got %d", got)
	}
}

type rejectingUploader struct {
	attempts atomic.Int32
}

func (r *rejectingUploader) UploadFile(ctx context.Context, userID string, req api.UploadRequest, onProgress func(int)) error {
	r.attempts.Add(1)
	return &api.StatusError{Op: "upload file", Code: 413}
}

func TestExecutorSkipsNonQueuedItems(t *testing.T) {
	fb := newFakeBackend()
	b := NewBatch(nil)
	done := b.Add(memItem("done.pdf"))
	b.Update(done.ID, func(cur UploadItem) UploadItem { return SetStage(cur, StageDone) })
	b.Add(memItem("new.pdf"))

	e := NewExecutor(fb, "u1", DefaultBands(), rhttp.Config{MaxRetries: 1}, nil)
	e.Upload(context.Background(), b)

	if len(fb.uploads) != 1 || fb.uploads[0] != "new.pdf" {
		t.Errorf("Expected only new.pdf uploaded, got %v", fb.uploads)
	}
}

// gaugeUploader records the highest number of uploads in flight at once.
type gaugeUploader struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *gaugeUploader) UploadFile(ctx context.Context, userID string, req api.UploadRequest, onProgress func(int)) error {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	onProgress(100)
	return nil
}

func TestExecutorHonoursSlotLimit(t *testing.T) {
	up := &gaugeUploader{}
	b := NewBatch(nil)
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"} {
		b.Add(memItem(name))
	}

	e := NewExecutor(up, "u1", DefaultBands(), rhttp.Config{MaxRetries: 1}, nil).
		WithLimiter(resources.NewManager(resources.Config{MaxConcurrent: 2}))
	if errs := e.Upload(context.Background(), b); len(errs) != 0 {
		t.Fatalf("Unexpected errors: %v", errs)
	}
	if got := up.peak.Load(); got > 2 {
		t.Errorf("Expected at most 2 concurrent uploads, saw %d", got)
	}
	for _, item := range b.Items() {
		if item.Stage != StageProcessing {
			t.Errorf("%s: stage %s, want processing", item.Name(), item.Stage)
		}
	}
}

func TestExecutorFailsItemsWhenCancelledWaitingForSlot(t *testing.T) {
	b := NewBatch(nil)
	item := b.Add(memItem("a.pdf"))

	limiter := resources.NewManager(resources.Config{MaxConcurrent: 1})
	if err := limiter.Acquire(context.Background(), "other"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	e := NewExecutor(newFakeBackend(), "u1", DefaultBands(), rhttp.Config{MaxRetries: 1}, nil).WithLimiter(limiter)
	errs := e.Upload(ctx, b)
	if len(errs) != 1 || !errors.Is(errs[0], context.DeadlineExceeded) {
		t.Fatalf("Expected deadline error, got %v", errs)
	}
	got, _ := b.Get(item.ID)
	if got.Stage != StageFailed {
		t.Errorf("Expected failed stage, got %s", got.Stage)
	}
}
