// Package testutil provides an in-memory ingestion backend for tests.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ragdesk/ragdesk/internal/models"
)

// RecordedUpload is one multipart upload received by the fake.
type RecordedUpload struct {
	UserID      string
	Filename    string
	ContentType string
	Content     []byte
}

type failure struct {
	status    int
	remaining int // < 0 means always
}

func (f *failure) take() (int, bool) {
	if f == nil || f.remaining == 0 {
		return 0, false
	}
	if f.remaining > 0 {
		f.remaining--
	}
	return f.status, true
}

// FakeBackend serves the backend HTTP surface from memory. Progress sequences,
// failures and upload gating are scriptable; every request is recorded.
type FakeBackend struct {
	Echo   *echo.Echo
	Server *httptest.Server

	mu              sync.Mutex
	files           map[string][]models.ServerFile
	categories      map[string][]string
	progress        map[string][]int
	lastProgress    map[string]int
	progressCalls   int
	uploads         []RecordedUpload
	manifests       []models.ProcessRequest
	categoryUpdates []models.CategoryUpdate
	deletes         []string
	requests        []string

	uploadFailures map[string]*failure
	listFailure    *failure
	progressFail   *failure
	processFail    *failure
	updateFail     *failure
	deleteFail     *failure
	uploadGate     chan struct{}
}

// NewFakeBackend starts a fake backend that is closed when the test ends.
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()

	fb := &FakeBackend{
		files:          make(map[string][]models.ServerFile),
		categories:     make(map[string][]string),
		progress:       make(map[string][]int),
		lastProgress:   make(map[string]int),
		uploadFailures: make(map[string]*failure),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(fb.record)

	e.GET("/get_user_files/:user_id", fb.handleListFiles)
	e.POST("/upload_files", fb.handleUpload)
	e.POST("/process_files", fb.handleProcess)
	e.GET("/progress/:user_id", fb.handleProgress)
	e.DELETE("/delete_user_file/:user_id/:filename", fb.handleDelete)
	e.POST("/update_category", fb.handleUpdateCategory)
	e.GET("/get_category/:user_id", fb.handleListCategories)

	fb.Echo = e
	fb.Server = httptest.NewServer(e)
	t.Cleanup(fb.Close)

	return fb
}

// URL returns the base URL of the fake.
func (fb *FakeBackend) URL() string {
	return fb.Server.URL
}

// Close stops the server and releases any gated uploads.
func (fb *FakeBackend) Close() {
	fb.ReleaseUploads()
	fb.Server.Close()
}

func (fb *FakeBackend) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		fb.mu.Lock()
		fb.requests = append(fb.requests, c.Request().Method+" "+c.Request().URL.Path)
		fb.mu.Unlock()
		return next(c)
	}
}

func param(c echo.Context, name string) string {
	v := c.Param(name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// SetFiles replaces the user's canonical file list.
func (fb *FakeBackend) SetFiles(userID string, files ...models.ServerFile) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.files[userID] = append([]models.ServerFile(nil), files...)
}

// SetCategories replaces the labels returned by /get_category.
func (fb *FakeBackend) SetCategories(userID string, labels ...string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.categories[userID] = append([]string(nil), labels...)
}

// SetProgressSequence scripts the values returned by successive progress
// polls. The last value repeats once the sequence is exhausted. Without a
// sequence the fake reports 100.
func (fb *FakeBackend) SetProgressSequence(userID string, seq ...int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.progress[userID] = append([]int(nil), seq...)
	delete(fb.lastProgress, userID)
}

// FailUpload makes uploads of filename answer status for the next n
// attempts, or forever when n < 0.
func (fb *FakeBackend) FailUpload(filename string, status, n int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.uploadFailures[filename] = &failure{status: status, remaining: n}
}

// FailList makes the file list endpoint answer status for the next n calls.
func (fb *FakeBackend) FailList(status, n int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.listFailure = &failure{status: status, remaining: n}
}

// FailProgress makes the progress endpoint answer status for the next n calls.
func (fb *FakeBackend) FailProgress(status, n int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.progressFail = &failure{status: status, remaining: n}
}

// FailProcess makes the manifest endpoint answer status for the next n calls.
func (fb *FakeBackend) FailProcess(status, n int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.processFail = &failure{status: status, remaining: n}
}

// FailUpdateCategory makes /update_category answer status for the next n calls.
func (fb *FakeBackend) FailUpdateCategory(status, n int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.updateFail = &failure{status: status, remaining: n}
}

// FailDelete makes deletes answer status for the next n calls.
func (fb *FakeBackend) FailDelete(status, n int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.deleteFail = &failure{status: status, remaining: n}
}

// GateUploads makes upload handlers block until ReleaseUploads is called.
func (fb *FakeBackend) GateUploads() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.uploadGate == nil {
		fb.uploadGate = make(chan struct{})
	}
}

// ReleaseUploads unblocks gated uploads.
func (fb *FakeBackend) ReleaseUploads() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.uploadGate != nil {
		close(fb.uploadGate)
		fb.uploadGate = nil
	}
}

// Uploads returns the uploads received so far.
func (fb *FakeBackend) Uploads() []RecordedUpload {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]RecordedUpload(nil), fb.uploads...)
}

// Manifests returns the processing manifests received so far.
func (fb *FakeBackend) Manifests() []models.ProcessRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]models.ProcessRequest(nil), fb.manifests...)
}

// CategoryUpdates returns the category updates received so far.
func (fb *FakeBackend) CategoryUpdates() []models.CategoryUpdate {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]models.CategoryUpdate(nil), fb.categoryUpdates...)
}

// Deletes returns "userID/filename" for every delete received.
func (fb *FakeBackend) Deletes() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.deletes...)
}

// ProgressCalls returns how many times the progress endpoint was polled.
func (fb *FakeBackend) ProgressCalls() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.progressCalls
}

// Requests returns "METHOD path" for every request received.
func (fb *FakeBackend) Requests() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.requests...)
}

// CountRequests returns how many recorded requests equal "METHOD path".
func (fb *FakeBackend) CountRequests(methodAndPath string) int {
	n := 0
	for _, r := range fb.Requests() {
		if r == methodAndPath {
			n++
		}
	}
	return n
}

func (fb *FakeBackend) handleListFiles(c echo.Context) error {
	userID := param(c, "user_id")

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if status, ok := fb.listFailure.take(); ok {
		return echo.NewHTTPError(status, "list failed")
	}

	files := append([]models.ServerFile{}, fb.files[userID]...)
	return c.JSON(http.StatusOK, models.FileListResponse{Files: files})
}

func (fb *FakeBackend) handleUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no file provided")
	}
	userID := c.FormValue("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "no user_id provided")
	}

	fb.mu.Lock()
	gate := fb.uploadGate
	fb.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}

	fb.mu.Lock()
	status, fail := fb.uploadFailures[fh.Filename].take()
	fb.mu.Unlock()
	if fail {
		return echo.NewHTTPError(status, fmt.Sprintf("upload of %s rejected", fh.Filename))
	}

	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read uploaded file")
	}

	fb.mu.Lock()
	fb.uploads = append(fb.uploads, RecordedUpload{
		UserID:      userID,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     content,
	})
	fb.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]string{"filename": fh.Filename})
}

// handleProcess records the manifest and adds every listed file that was
// uploaded to the user's canonical list.
func (fb *FakeBackend) handleProcess(c echo.Context) error {
	var req models.ProcessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid manifest")
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if status, ok := fb.processFail.take(); ok {
		return echo.NewHTTPError(status, "processing rejected")
	}

	fb.manifests = append(fb.manifests, req)

	for _, entry := range req.Files {
		var upload *RecordedUpload
		for i := range fb.uploads {
			if fb.uploads[i].UserID == req.UserID && fb.uploads[i].Filename == entry.Filename {
				upload = &fb.uploads[i]
			}
		}
		if upload == nil {
			continue
		}
		sf := models.ServerFile{
			Filename:    entry.Filename,
			ContentType: upload.ContentType,
			Size:        int64(len(upload.Content)),
			Category:    entry.Category,
		}
		fb.upsertFileLocked(req.UserID, sf)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "processing"})
}

func (fb *FakeBackend) upsertFileLocked(userID string, sf models.ServerFile) {
	files := fb.files[userID]
	for i := range files {
		if files[i].Filename == sf.Filename {
			files[i] = sf
			return
		}
	}
	fb.files[userID] = append(files, sf)
}

func (fb *FakeBackend) handleProgress(c echo.Context) error {
	userID := param(c, "user_id")

	fb.mu.Lock()
	defer fb.mu.Unlock()

	fb.progressCalls++

	if status, ok := fb.progressFail.take(); ok {
		return echo.NewHTTPError(status, "progress unavailable")
	}

	value := 100
	if seq, ok := fb.progress[userID]; ok {
		if len(seq) > 0 {
			value = seq[0]
			fb.progress[userID] = seq[1:]
			fb.lastProgress[userID] = value
		} else if last, ok := fb.lastProgress[userID]; ok {
			value = last
		}
	}

	return c.JSON(http.StatusOK, models.ProgressResponse{Progress: float64(value)})
}

func (fb *FakeBackend) handleDelete(c echo.Context) error {
	userID := param(c, "user_id")
	filename := param(c, "filename")

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if status, ok := fb.deleteFail.take(); ok {
		return echo.NewHTTPError(status, "delete failed")
	}

	fb.deletes = append(fb.deletes, userID+"/"+filename)

	files := fb.files[userID]
	for i := range files {
		if files[i].Filename == filename {
			fb.files[userID] = append(files[:i:i], files[i+1:]...)
			return c.JSON(http.StatusOK, map[string]string{"deleted": filename})
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "file not found")
}

func (fb *FakeBackend) handleUpdateCategory(c echo.Context) error {
	var req models.CategoryUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid category update")
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if status, ok := fb.updateFail.take(); ok {
		return echo.NewHTTPError(status, "update failed")
	}

	fb.categoryUpdates = append(fb.categoryUpdates, req)

	files := fb.files[req.UserID]
	for i := range files {
		if files[i].Filename == req.Filename {
			files[i].Category = req.Category
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

// handleListCategories returns the configured labels plus every label in use,
// sorted and deduplicated.
func (fb *FakeBackend) handleListCategories(c echo.Context) error {
	userID := param(c, "user_id")

	fb.mu.Lock()
	defer fb.mu.Unlock()

	seen := make(map[string]bool)
	var labels []string
	for _, l := range fb.categories[userID] {
		if !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	for _, f := range fb.files[userID] {
		if l := f.CategoryLabel(); l != "" && !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	sort.Strings(labels)

	return c.JSON(http.StatusOK, models.CategoryListResponse{Categories: labels})
}
