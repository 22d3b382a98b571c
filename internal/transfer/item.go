// Package transfer drives a batch of document uploads through network
// transfer and backend ingestion, merging both progress feeds into one
// monotonic percentage per item.
package transfer

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	nethttp "net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SourceHandle references the bytes and metadata of one local file. It is
// immutable; Open returns a fresh reader for every transfer attempt.
type SourceHandle struct {
	Name        string
	Size        int64
	ContentType string
	Path        string // empty for in-memory sources

	data []byte
}

// NewSourceHandle builds a handle for the file at path. The MIME type comes
// from the extension, falling back to content sniffing.
func NewSourceHandle(path string) (SourceHandle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return SourceHandle{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return SourceHandle{}, fmt.Errorf("%s is a directory", path)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType, err = sniffContentType(path)
		if err != nil {
			return SourceHandle{}, err
		}
	}

	return SourceHandle{
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: contentType,
		Path:        path,
	}, nil
}

// NewMemorySource builds a handle over an in-memory buffer.
func NewMemorySource(name string, data []byte, contentType string) SourceHandle {
	if contentType == "" {
		contentType = nethttp.DetectContentType(data)
	}
	return SourceHandle{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: contentType,
		data:        data,
	}
}

func sniffContentType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nethttp.DetectContentType(head[:n]), nil
}

// Open returns a new reader over the source bytes.
func (s SourceHandle) Open() (io.ReadCloser, error) {
	if s.Path == "" {
		return io.NopCloser(bytes.NewReader(s.data)), nil
	}
	return os.Open(s.Path)
}

// UploadItem is one file in a batch. Values are copied, never shared; all
// changes go through Batch.Update.
type UploadItem struct {
	ID          string
	Source      SourceHandle
	Progress    int // 0..100, never decreases
	Stage       Stage
	Transferred bool // network upload finished; ingestion may still be running
	Err         error
	CreatedAt   time.Time
}

// NewUploadItem returns a queued item with a fresh synthetic ID.
func NewUploadItem(src SourceHandle) UploadItem {
	return UploadItem{
		ID:        "item-" + uuid.NewString(),
		Source:    src,
		Stage:     StageQueued,
		CreatedAt: time.Now(),
	}
}

// Name returns the file name the backend keys the item by.
func (i UploadItem) Name() string {
	return i.Source.Name
}

// Active reports whether the item still takes part in ingestion polling.
func (i UploadItem) Active() bool {
	return i.Transferred && i.Stage != StageFailed
}
