// Package category keeps the shared category taxonomy and the per-file
// assignments for one user.
//
// Mutations are optimistic: local state changes first, under the registry
// lock, and the backend is told afterwards with one update call per affected
// file. A failed update is logged and published as a SyncError but never
// rolled back; the next successful list refresh is authoritative.
package category

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/events"
	"github.com/ragdesk/ragdesk/internal/logging"
	"github.com/ragdesk/ragdesk/internal/models"
	"github.com/ragdesk/ragdesk/internal/session"
	"github.com/ragdesk/ragdesk/internal/util/tags"
)

// Option is one category in the taxonomy. Value and Color are derived from
// Label and never set independently.
type Option struct {
	Label string
	Value string
	Color string
}

// NewOption normalizes raw into an Option. Empty or whitespace-only input
// returns api.ErrEmptyLabel.
func NewOption(raw string) (Option, error) {
	label := tags.CleanLabel(raw)
	if label == "" {
		return Option{}, api.ErrEmptyLabel
	}
	return Option{
		Label: label,
		Value: tags.ToValue(label),
		Color: tags.ColorFor(label),
	}, nil
}

// Syncer is the backend surface the registry writes through.
type Syncer interface {
	UpdateCategory(ctx context.Context, userID, filename string, category *string) error
	ListCategories(ctx context.Context, userID string) ([]string, error)
}

// Registry holds the option set and the filename → option assignments.
type Registry struct {
	session  *session.Session
	syncer   Syncer
	eventBus *events.EventBus
	logger   *logging.Logger

	mu          sync.RWMutex
	options     []Option          // insertion order
	assignments map[string]string // filename → option value
}

// NewRegistry creates an empty registry. bus and logger may be nil.
func NewRegistry(sess *session.Session, syncer Syncer, bus *events.EventBus, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		session:     sess,
		syncer:      syncer,
		eventBus:    bus,
		logger:      logger.Component("category"),
		assignments: make(map[string]string),
	}
}

// upsertLocked adds opt if its value is new and returns the stored option.
func (r *Registry) upsertLocked(opt Option) (Option, bool) {
	for _, o := range r.options {
		if o.Value == opt.Value {
			return o, false
		}
	}
	r.options = append(r.options, opt)
	return opt, true
}

func (r *Registry) lookupLocked(value string) (Option, bool) {
	for _, o := range r.options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// Assign sets filename's category, or clears it when opt is nil, and syncs
// the change. An option not yet in the set is added. The returned error is a
// *api.SyncError; local state is kept either way.
func (r *Registry) Assign(ctx context.Context, filename string, opt *Option) error {
	var canonical Option
	if opt != nil {
		// Value and colour always derive from the label.
		var err error
		if canonical, err = NewOption(opt.Label); err != nil {
			return err
		}
	}

	r.mu.Lock()
	var stored Option
	if opt != nil {
		stored, _ = r.upsertLocked(canonical)
		r.assignments[filename] = stored.Value
	} else {
		delete(r.assignments, filename)
	}
	r.mu.Unlock()

	if opt == nil {
		r.eventBus.PublishCategory(events.EventCategoryChanged, "assign", filename, "", "", nil)
		return r.sync(ctx, "assign", filename, nil)
	}
	r.eventBus.PublishCategory(events.EventCategoryChanged, "assign", filename, stored.Value, stored.Label, nil)
	return r.sync(ctx, "assign", filename, &stored)
}

// CreateAndAssign normalizes rawLabel, adds it to the set unless an option
// with the same value exists, and assigns it to filename. Blank input is
// rejected with api.ErrEmptyLabel and changes nothing.
func (r *Registry) CreateAndAssign(ctx context.Context, filename, rawLabel string) (Option, error) {
	opt, err := NewOption(rawLabel)
	if err != nil {
		return Option{}, err
	}

	r.mu.Lock()
	stored, created := r.upsertLocked(opt)
	r.assignments[filename] = stored.Value
	r.mu.Unlock()

	if created {
		r.eventBus.PublishCategory(events.EventCategoryChanged, "create", "", stored.Value, stored.Label, nil)
		r.logger.Debug().Str("label", stored.Label).Str("value", stored.Value).Msg("category created")
	}
	r.eventBus.PublishCategory(events.EventCategoryChanged, "assign", filename, stored.Value, stored.Label, nil)

	return stored, r.sync(ctx, "assign", filename, &stored)
}

// DeleteEverywhere removes the option with value from the set and clears it
// from every file holding it, whether or not that file is currently visible.
// Each affected file is cleared on the backend; failures are joined into the
// returned error. It returns the affected file names.
func (r *Registry) DeleteEverywhere(ctx context.Context, value string) ([]string, error) {
	r.mu.Lock()
	removed, found := r.lookupLocked(value)
	kept := r.options[:0]
	for _, o := range r.options {
		if o.Value != value {
			kept = append(kept, o)
		}
	}
	r.options = kept

	var affected []string
	for filename, v := range r.assignments {
		if v == value {
			affected = append(affected, filename)
			delete(r.assignments, filename)
		}
	}
	r.mu.Unlock()

	sort.Strings(affected)
	if found {
		r.eventBus.PublishCategory(events.EventCategoryChanged, "delete", "", removed.Value, removed.Label, nil)
	}

	var errs []error
	for _, filename := range affected {
		if err := r.sync(ctx, "delete", filename, nil); err != nil {
			errs = append(errs, err)
		}
	}

	r.logger.Info().Str("value", value).Int("files", len(affected)).Msg("category deleted")
	return affected, errors.Join(errs...)
}

// HydrateFromServer rebuilds the assignments from a canonical file list and
// merges every category it mentions into the option set. Options missing
// from the snapshot are kept.
func (r *Registry) HydrateFromServer(files []models.ServerFile) {
	next := make(map[string]string, len(files))
	var found []Option
	for _, f := range files {
		opt, err := NewOption(f.CategoryLabel())
		if err != nil {
			continue
		}
		next[f.Filename] = opt.Value
		found = append(found, opt)
	}

	r.mu.Lock()
	added := 0
	for _, opt := range found {
		if _, created := r.upsertLocked(opt); created {
			added++
		}
	}
	r.assignments = next
	total := len(r.options)
	r.mu.Unlock()

	r.eventBus.PublishCategory(events.EventCategoryChanged, "hydrate", "", "", "", nil)
	r.logger.Debug().Int("files", len(files)).Int("new_options", added).Int("options", total).Msg("hydrated")
}

// LoadOptions merges the backend's category list into the option set.
func (r *Registry) LoadOptions(ctx context.Context) error {
	labels, err := r.syncer.ListCategories(ctx, r.session.UserID)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}

	r.mu.Lock()
	for _, label := range labels {
		if opt, err := NewOption(label); err == nil {
			r.upsertLocked(opt)
		}
	}
	r.mu.Unlock()
	return nil
}

// Options returns the option set in insertion order.
func (r *Registry) Options() []Option {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Option, len(r.options))
	copy(out, r.options)
	return out
}

// Lookup returns the option with the given value.
func (r *Registry) Lookup(value string) (Option, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(value)
}

// Resolve finds the option a raw label or value refers to.
func (r *Registry) Resolve(raw string) (Option, bool) {
	opt, err := NewOption(raw)
	if err != nil {
		return Option{}, false
	}
	return r.Lookup(opt.Value)
}

// AssignmentOf returns filename's category, or nil.
func (r *Registry) AssignmentOf(filename string) *Option {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.assignments[filename]
	if !ok {
		return nil
	}
	opt, ok := r.lookupLocked(value)
	if !ok {
		return nil
	}
	return &opt
}

// Assignments returns a copy of every current assignment.
func (r *Registry) Assignments() map[string]Option {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Option, len(r.assignments))
	for filename, value := range r.assignments {
		if opt, ok := r.lookupLocked(value); ok {
			out[filename] = opt
		}
	}
	return out
}

// sync pushes one file's category to the backend.
func (r *Registry) sync(ctx context.Context, action, filename string, opt *Option) error {
	var label *string
	value := ""
	if opt != nil {
		label = &opt.Label
		value = opt.Value
	}

	err := r.syncer.UpdateCategory(ctx, r.session.UserID, filename, label)
	if err == nil {
		return nil
	}

	serr := &api.SyncError{Filename: filename, Err: err}
	r.logger.Warn().Str("file", filename).Str("action", action).Err(err).Msg("category sync failed; keeping local state")
	labelStr := ""
	if label != nil {
		labelStr = *label
	}
	r.eventBus.PublishCategory(events.EventSyncFailed, action, filename, value, labelStr, serr)
	return serr
}
