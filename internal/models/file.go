// Package models holds the wire types of the ingestion backend's HTTP surface.
package models

// ServerFile is the canonical record of an ingested document as returned by
// GET /get_user_files/{userId}.
type ServerFile struct {
	Filename    string  `json:"filename"`
	ContentType string  `json:"content_type"`
	Size        int64   `json:"size"`
	Category    *string `json:"category,omitempty"` // label, not a reference
}

// CategoryLabel returns the file's category label or "" when untagged.
func (f ServerFile) CategoryLabel() string {
	if f.Category == nil {
		return ""
	}
	return *f.Category
}

// FileListResponse represents the response from the file list endpoint
type FileListResponse struct {
	Files []ServerFile `json:"files"`
}

// ManifestEntry is one transferred file submitted for processing.
type ManifestEntry struct {
	Filename string  `json:"filename"`
	Category *string `json:"category"`
}

// ProcessRequest is the body of POST /process_files.
type ProcessRequest struct {
	UserID string          `json:"user_id"`
	Files  []ManifestEntry `json:"files"`
}

// ProgressResponse is the body of GET /progress/{userId}.
// The backend reports an integer but some deployments send floats.
type ProgressResponse struct {
	Progress float64 `json:"progress"`
}

// CategoryUpdate is the body of POST /update_category. A nil Category clears
// the file's tag.
type CategoryUpdate struct {
	UserID   string  `json:"user_id"`
	Filename string  `json:"filename"`
	Category *string `json:"category"`
}

// CategoryListResponse is the body of GET /get_category/{userId}.
type CategoryListResponse struct {
	Categories []string `json:"categories"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
