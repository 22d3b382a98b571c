// Package filelist caches the canonical list of ingested files and layers
// selection, category filtering and bulk deletion on top of it.
package filelist

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/category"
	"github.com/ragdesk/ragdesk/internal/events"
	"github.com/ragdesk/ragdesk/internal/logging"
	"github.com/ragdesk/ragdesk/internal/models"
	"github.com/ragdesk/ragdesk/internal/session"
	"github.com/ragdesk/ragdesk/internal/util/tags"
)

// Backend is the part of the API the view reads and deletes through.
type Backend interface {
	ListUserFiles(ctx context.Context, userID string) ([]models.ServerFile, error)
	DeleteUserFile(ctx context.Context, userID, filename string) error
}

// Row is one file as displayed, with its category resolved against the
// registry.
type Row struct {
	File     models.ServerFile
	Category *category.Option
	Selected bool
}

// View is a client-side cache of the user's files. The backend is the source
// of truth; the cache is replaced wholesale on every successful Refresh.
type View struct {
	session  *session.Session
	backend  Backend
	registry *category.Registry
	eventBus *events.EventBus
	logger   *logging.Logger

	mu        sync.RWMutex
	files     []models.ServerFile
	selected  map[string]bool
	refreshed bool
}

// NewView creates an empty view. bus and logger may be nil.
func NewView(sess *session.Session, backend Backend, registry *category.Registry, bus *events.EventBus, logger *logging.Logger) *View {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &View{
		session:  sess,
		backend:  backend,
		registry: registry,
		eventBus: bus,
		logger:   logger.Component("filelist"),
		selected: make(map[string]bool),
	}
}

// Refresh reloads the file list and hydrates the registry from it. On
// failure the previous snapshot is kept and a *api.ListFetchError returned.
func (v *View) Refresh(ctx context.Context) error {
	files, err := v.backend.ListUserFiles(ctx, v.session.UserID)
	if err != nil {
		lerr := &api.ListFetchError{Err: err}
		v.logger.Warn().Err(err).Msg("file list refresh failed; keeping cached snapshot")
		v.eventBus.PublishFileList(v.Len(), lerr)
		return lerr
	}

	v.mu.Lock()
	v.files = files
	v.refreshed = true
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Filename] = true
	}
	for name := range v.selected {
		if !present[name] {
			delete(v.selected, name)
		}
	}
	v.mu.Unlock()

	if v.registry != nil {
		v.registry.HydrateFromServer(files)
	}

	v.eventBus.PublishFileList(len(files), nil)
	v.logger.Debug().Int("files", len(files)).Msg("file list refreshed")
	return nil
}

// Refreshed reports whether at least one refresh has succeeded.
func (v *View) Refreshed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.refreshed
}

// Len returns the number of cached files.
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.files)
}

// Files returns every cached file as a row.
func (v *View) Files() []Row {
	return v.rows(nil)
}

// Filter returns the rows whose category normalizes to opt's value, so
// "My Docs", "my docs" and "my-docs" all match. A nil opt returns every row.
func (v *View) Filter(opt *category.Option) []Row {
	if opt == nil {
		return v.rows(nil)
	}
	return v.rows(func(f models.ServerFile) bool {
		label := f.CategoryLabel()
		return label != "" && tags.ToValue(label) == opt.Value
	})
}

// Uncategorized returns the rows without a category.
func (v *View) Uncategorized() []Row {
	return v.rows(func(f models.ServerFile) bool { return f.CategoryLabel() == "" })
}

func (v *View) rows(keep func(models.ServerFile) bool) []Row {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Row, 0, len(v.files))
	for _, f := range v.files {
		if keep != nil && !keep(f) {
			continue
		}
		row := Row{File: f, Selected: v.selected[f.Filename]}
		if v.registry != nil {
			row.Category = v.registry.AssignmentOf(f.Filename)
		}
		out = append(out, row)
	}
	return out
}

// Toggle flips the selection of filename. Unknown names are ignored.
func (v *View) Toggle(filename string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.hasLocked(filename) {
		return false
	}
	if v.selected[filename] {
		delete(v.selected, filename)
		return false
	}
	v.selected[filename] = true
	return true
}

// Select marks the given files selected. Unknown names are returned.
func (v *View) Select(filenames ...string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var unknown []string
	for _, name := range filenames {
		if !v.hasLocked(name) {
			unknown = append(unknown, name)
			continue
		}
		v.selected[name] = true
	}
	return unknown
}

// SelectAll selects every file, or clears the selection if everything is
// already selected.
func (v *View) SelectAll() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.files) > 0 && len(v.selected) == len(v.files) {
		v.selected = make(map[string]bool)
		return
	}
	for _, f := range v.files {
		v.selected[f.Filename] = true
	}
}

// ClearSelection deselects everything.
func (v *View) ClearSelection() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = make(map[string]bool)
}

// Selected returns the selected file names, sorted.
func (v *View) Selected() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]string, 0, len(v.selected))
	for name := range v.selected {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (v *View) hasLocked(filename string) bool {
	for _, f := range v.files {
		if f.Filename == filename {
			return true
		}
	}
	return false
}

// Remove deletes one file on the backend and refreshes the list.
func (v *View) Remove(ctx context.Context, filename string) error {
	if err := v.backend.DeleteUserFile(ctx, v.session.UserID, filename); err != nil {
		return fmt.Errorf("failed to delete %s: %w", filename, err)
	}
	v.logger.Info().Str("file", filename).Msg("file deleted")
	return v.Refresh(ctx)
}

// DeleteResult reports a bulk delete.
type DeleteResult struct {
	Deleted []string
	Failed  map[string]error
}

// DeleteSelected deletes every selected file one at a time, then refreshes
// the list once. Files that fail to delete stay selected.
func (v *View) DeleteSelected(ctx context.Context) (DeleteResult, error) {
	result := DeleteResult{Failed: make(map[string]error)}

	for _, name := range v.Selected() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := v.backend.DeleteUserFile(ctx, v.session.UserID, name); err != nil {
			v.logger.Warn().Str("file", name).Err(err).Msg("delete failed")
			result.Failed[name] = err
			continue
		}
		result.Deleted = append(result.Deleted, name)

		v.mu.Lock()
		delete(v.selected, name)
		v.mu.Unlock()
	}

	if len(result.Deleted) == 0 && len(result.Failed) == 0 {
		return result, nil
	}

	v.logger.Info().Int("deleted", len(result.Deleted)).Int("failed", len(result.Failed)).Msg("bulk delete finished")
	return result, v.Refresh(ctx)
}
