package api

import (
	"errors"
	"fmt"
	nethttp "net/http"
)

var (
	// ErrEmptyLabel is returned when a category label is blank after trimming.
	ErrEmptyLabel = errors.New("category label is empty")

	// ErrBatchRunning is returned when a batch operation is attempted while an
	// upload is in flight.
	ErrBatchRunning = errors.New("batch is already uploading")
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.Code, e.Body)
}

// StatusCode lets the retry classifier treat 5xx/429 as retryable.
func (e *StatusError) StatusCode() int { return e.Code }

// TransferError is one file's upload failure. Siblings are unaffected.
type TransferError struct {
	Filename string
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Filename, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// PollError means the ingestion progress endpoint failed or the poll budget
// ran out. It is fatal to the current batch.
type PollError struct {
	Err error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("ingestion poll: %v", e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// SyncError is a failed best-effort category synchronization. Local state is
// kept as is.
type SyncError struct {
	Filename string
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync category for %s: %v", e.Filename, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// ListFetchError means the canonical file list could not be refreshed; the
// previous snapshot stays in place.
type ListFetchError struct {
	Err error
}

func (e *ListFetchError) Error() string {
	return fmt.Sprintf("fetch file list: %v", e.Err)
}

func (e *ListFetchError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == nethttp.StatusNotFound
}
