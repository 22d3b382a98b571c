package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/config"
	"github.com/ragdesk/ragdesk/internal/constants"
	"github.com/ragdesk/ragdesk/internal/events"
	rhttp "github.com/ragdesk/ragdesk/internal/http"
	"github.com/ragdesk/ragdesk/internal/logging"
	"github.com/ragdesk/ragdesk/internal/models"
	"github.com/ragdesk/ragdesk/internal/resources"
	"github.com/ragdesk/ragdesk/internal/session"
)

// BatchState is the orchestrator's view of the current batch.
type BatchState int

const (
	StateIdle BatchState = iota
	StateUploading
	StateAwaitingIngestion
	StatePolling
	StateSettledDone
	StateSettledFailed
)

func (s BatchState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateAwaitingIngestion:
		return "awaiting_ingestion"
	case StatePolling:
		return "polling"
	case StateSettledDone:
		return "settled_done"
	case StateSettledFailed:
		return "settled_failed"
	default:
		return "unknown"
	}
}

// Running reports whether items may not be added or removed in this state.
func (s BatchState) Running() bool {
	return s == StateUploading || s == StateAwaitingIngestion
}

// Backend is the part of the API the orchestrator drives.
type Backend interface {
	Uploader
	ProgressFetcher
	ProcessFiles(ctx context.Context, userID string, entries []models.ManifestEntry) error
}

// Refresher reloads the canonical server file list.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Outcome describes how a batch settled. Items is the batch as it stood at
// the moment of settling.
type Outcome struct {
	State BatchState
	Items []UploadItem
	Err   error
}

// Options tunes an Orchestrator. Zero values select the defaults.
type Options struct {
	Bands           Bands
	PollInterval    time.Duration
	PollMaxDuration time.Duration
	SettleDelay     time.Duration
	Retry           rhttp.Config
	Concurrency     int // parallel transfers (0 = derive from CPU count)
}

// OptionsFromConfig derives orchestrator options from the client config.
func OptionsFromConfig(cfg *config.Config) Options {
	retry := rhttp.DefaultConfig()
	if cfg.UploadRetries > 0 {
		retry.MaxRetries = cfg.UploadRetries
	}
	return Options{
		Bands:           Bands{TransferCeiling: cfg.TransferBand},
		PollInterval:    cfg.PollInterval,
		PollMaxDuration: cfg.PollMaxDuration,
		SettleDelay:     cfg.SettleDelay,
		Retry:           retry,
		Concurrency:     cfg.UploadConcurrency,
	}
}

func (o Options) withDefaults() Options {
	if o.Bands.TransferCeiling == 0 {
		o.Bands = DefaultBands()
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	} else if o.SettleDelay == 0 {
		o.SettleDelay = constants.DefaultSettleDelay
	}
	if o.Retry.MaxRetries == 0 {
		o.Retry = rhttp.DefaultConfig()
	}
	return o
}

// Orchestrator owns the batch and sequences transfer, manifest submission
// and ingestion polling for one session.
type Orchestrator struct {
	session  *session.Session
	backend  Backend
	batch    *Batch
	executor *Executor
	poller   *Poller
	opts     Options
	eventBus *events.EventBus
	logger   *logging.Logger

	mu         sync.Mutex
	state      BatchState
	gen        uint64             // identifies the current batch run
	categories map[string]*string // manifest category label per file name
	cancel     context.CancelFunc // cancels the current run
	settle     *time.Timer
	refresher  Refresher
	done       chan Outcome
	closed     bool
}

// NewOrchestrator creates an orchestrator for sess. bus and logger may be nil.
func NewOrchestrator(sess *session.Session, backend Backend, bus *events.EventBus, logger *logging.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	opts = opts.withDefaults()
	executor := NewExecutor(backend, sess.UserID, opts.Bands, opts.Retry, logger).
		WithLimiter(resources.NewManager(resources.Config{MaxConcurrent: opts.Concurrency}))

	return &Orchestrator{
		session:    sess,
		backend:    backend,
		batch:      NewBatch(bus),
		executor:   executor,
		poller:     NewPoller(backend, opts.Bands, opts.PollInterval, opts.PollMaxDuration, logger),
		opts:       opts,
		eventBus:   bus,
		logger:     logger.Component("orchestrator"),
		categories: make(map[string]*string),
		done:       make(chan Outcome, 8),
	}
}

// SetRefresher registers the list view refreshed after a batch completes.
func (o *Orchestrator) SetRefresher(r Refresher) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refresher = r
}

// Done delivers one Outcome per settled batch. A successful batch is
// delivered after it has been cleared and the file list refreshed. The
// channel is closed by Close.
func (o *Orchestrator) Done() <-chan Outcome {
	return o.done
}

// State returns the current batch state.
func (o *Orchestrator) State() BatchState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Items returns a snapshot of the batch.
func (o *Orchestrator) Items() []UploadItem {
	return o.batch.Items()
}

// Batch exposes the underlying batch for read-only observers.
func (o *Orchestrator) Batch() *Batch {
	return o.batch
}

// Enqueue adds one item per handle. A handle whose name matches an item
// already in the batch replaces it.
func (o *Orchestrator) Enqueue(handles ...SourceHandle) ([]UploadItem, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, errors.New("orchestrator is closed")
	}
	if o.state.Running() {
		return nil, api.ErrBatchRunning
	}

	added := make([]UploadItem, 0, len(handles))
	for _, h := range handles {
		added = append(added, o.batch.Add(NewUploadItem(h)))
	}
	o.logger.Debug().Int("items", len(added)).Msg("enqueued")
	return added, nil
}

// SetCategory records the category sent in the manifest for a queued file.
// A nil label sends null.
func (o *Orchestrator) SetCategory(filename string, label *string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if label == nil || *label == "" {
		delete(o.categories, filename)
		return
	}
	l := *label
	o.categories[filename] = &l
}

// Category returns the manifest category recorded for filename.
func (o *Orchestrator) Category(filename string) *string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.categories[filename]
}

// Remove drops one item. It fails while a batch is transferring.
func (o *Orchestrator) Remove(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Running() {
		return api.ErrBatchRunning
	}
	item, ok := o.batch.Remove(id)
	if !ok {
		return fmt.Errorf("no item with id %s", id)
	}
	delete(o.categories, item.Name())

	if o.batch.Len() == 0 && o.state == StateSettledFailed {
		o.setStateLocked(StateIdle, nil)
	}
	return nil
}

// Clear empties the batch and cancels any poller. It fails while a batch is
// transferring.
func (o *Orchestrator) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Running() {
		return api.ErrBatchRunning
	}
	if o.supersedesIngestedLocked() && o.refresher != nil {
		go o.refreshList(o.refresher, "cleared")
	}
	o.abortRunLocked()
	o.batch.Clear()
	o.categories = make(map[string]*string)
	o.setStateLocked(StateIdle, nil)
	return nil
}

// Retry requeues every failed item and starts a new run.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	if o.state.Running() {
		o.mu.Unlock()
		return api.ErrBatchRunning
	}
	failed := o.batch.RemoveWhere(func(item UploadItem) bool { return item.Stage == StageFailed })
	for _, item := range failed {
		o.batch.Add(NewUploadItem(item.Source))
	}
	o.mu.Unlock()

	o.logger.Info().Int("items", len(failed)).Msg("retrying failed items")
	return o.StartUpload(ctx)
}

// StartUpload transfers every queued item, submits the manifest for the
// ones that made it and starts ingestion polling. It returns once polling
// has begun or the batch has settled; completion is reported on Done.
//
// It is a no-op if nothing is queued and returns api.ErrBatchRunning while
// another run is transferring. A batch that is still polling is superseded:
// its poller is cancelled and its items dropped before the new run starts.
func (o *Orchestrator) StartUpload(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return errors.New("orchestrator is closed")
	}
	if o.state.Running() {
		o.mu.Unlock()
		return api.ErrBatchRunning
	}
	if o.batch.Counts()[StageQueued] == 0 {
		o.mu.Unlock()
		return nil
	}

	if o.supersedesIngestedLocked() && o.refresher != nil {
		go o.refreshList(o.refresher, "superseded")
	}
	o.abortRunLocked()
	stale := o.batch.RemoveWhere(func(item UploadItem) bool { return item.Stage != StageQueued })
	if len(stale) > 0 {
		o.logger.Info().Int("items", len(stale)).Msg("dropping items from previous batch")
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.gen++
	gen := o.gen
	o.setStateLocked(StateUploading, nil)
	o.mu.Unlock()

	transferErrs := o.executor.Upload(runCtx, o.batch)

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return nil
	}
	var manifest []models.ManifestEntry
	for _, item := range o.batch.Items() {
		if item.Active() {
			manifest = append(manifest, models.ManifestEntry{
				Filename: item.Name(),
				Category: o.categories[item.Name()],
			})
		}
	}
	if len(manifest) == 0 {
		o.mu.Unlock()
		o.settleRun(gen, errors.Join(transferErrs...))
		return nil
	}
	o.setStateLocked(StateAwaitingIngestion, nil)
	o.mu.Unlock()

	if len(transferErrs) > 0 {
		o.logger.Warn().Int("failed", len(transferErrs)).Int("transferred", len(manifest)).
			Msg("some transfers failed; continuing with the rest")
	}

	if err := o.backend.ProcessFiles(runCtx, o.session.UserID, manifest); err != nil {
		o.logger.Error().Err(err).Msg("manifest submission failed")
		o.settleRun(gen, fmt.Errorf("failed to submit manifest: %w", err))
		return nil
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return nil
	}
	o.setStateLocked(StatePolling, nil)
	o.mu.Unlock()

	o.poller.Start(runCtx, o.session.UserID, o.batch, func(err error) {
		o.settleRun(gen, err)
	})
	return nil
}

// settleRun finishes run gen. err == nil means every active item is done.
func (o *Orchestrator) settleRun(gen uint64, err error) {
	o.mu.Lock()
	if gen != o.gen || o.closed {
		o.mu.Unlock()
		return
	}

	if err != nil {
		o.batch.UpdateAll(
			func(item UploadItem) bool { return !item.Stage.Terminal() && item.Stage != StageQueued },
			func(item UploadItem) UploadItem { return Fail(item, err) },
		)
	}

	failed := o.batch.Counts()[StageFailed]
	if err == nil && failed == 0 {
		o.setStateLocked(StateSettledDone, nil)
		outcome := Outcome{State: StateSettledDone, Items: o.runItems()}
		o.settle = time.AfterFunc(o.opts.SettleDelay, func() {
			o.finishRun(gen, outcome)
		})
		o.mu.Unlock()
		return
	}

	if err == nil {
		err = fmt.Errorf("%d of %d items failed", failed, o.batch.Len())
	}
	o.setStateLocked(StateSettledFailed, err)
	outcome := Outcome{State: StateSettledFailed, Items: o.runItems(), Err: err}
	refresher := o.refresher
	ingested := o.ingestedLocked()
	if !ingested || refresher == nil {
		o.sendLocked(outcome)
		o.mu.Unlock()
		o.logger.Warn().Err(err).Msg("batch settled with failures")
		return
	}
	o.mu.Unlock()

	o.logger.Warn().Err(err).Msg("batch settled with failures")
	// The failed items stay in the batch; the ingested ones are on the
	// server now and belong in the file list.
	o.refreshList(refresher, "partial batch")

	o.mu.Lock()
	if gen == o.gen {
		o.sendLocked(outcome)
	}
	o.mu.Unlock()
}

// finishRun clears a successful batch and refreshes the file list.
func (o *Orchestrator) finishRun(gen uint64, outcome Outcome) {
	o.mu.Lock()
	if gen != o.gen || o.closed {
		o.mu.Unlock()
		return
	}
	o.settle = nil
	// Files queued while the run was polling stay for the next run.
	for _, item := range o.batch.RemoveWhere(func(item UploadItem) bool { return item.Stage != StageQueued }) {
		delete(o.categories, item.Name())
	}
	o.setStateLocked(StateIdle, nil)
	refresher := o.refresher
	o.mu.Unlock()

	o.logger.Info().Int("items", len(outcome.Items)).Msg("batch complete")

	if refresher != nil {
		o.refreshList(refresher, "batch complete")
	}

	o.mu.Lock()
	o.sendLocked(outcome)
	o.mu.Unlock()
}

func (o *Orchestrator) refreshList(r Refresher, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.APIContextTimeout)
	defer cancel()
	if err := r.Refresh(ctx); err != nil {
		o.logger.Warn().Err(err).Str("reason", reason).Msg("file list refresh failed")
	}
}

// ingestedLocked reports whether any item of the batch finished ingestion.
func (o *Orchestrator) ingestedLocked() bool {
	return o.batch.Counts()[StageDone] > 0
}

// supersedesIngestedLocked reports whether aborting now would drop a run
// whose ingested files have not been refreshed into the file list yet: one
// still polling or waiting out its settle delay.
func (o *Orchestrator) supersedesIngestedLocked() bool {
	if o.state != StatePolling && o.settle == nil {
		return false
	}
	return o.ingestedLocked()
}

// runItems returns the items that took part in the current run.
func (o *Orchestrator) runItems() []UploadItem {
	var out []UploadItem
	for _, item := range o.batch.Items() {
		if item.Stage != StageQueued {
			out = append(out, item)
		}
	}
	return out
}

// abortRunLocked cancels everything belonging to the current run.
func (o *Orchestrator) abortRunLocked() {
	o.gen++
	o.poller.Stop()
	if o.settle != nil {
		o.settle.Stop()
		o.settle = nil
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

func (o *Orchestrator) sendLocked(outcome Outcome) {
	if o.closed {
		return
	}
	select {
	case o.done <- outcome:
	default:
		o.logger.Warn().Str("state", outcome.State.String()).Msg("outcome dropped; no reader")
	}
}

func (o *Orchestrator) setStateLocked(state BatchState, err error) {
	if o.state == state {
		return
	}
	old := o.state
	o.state = state

	counts := o.batch.Counts()
	o.eventBus.PublishBatchState(old.String(), state.String(), o.batch.Len(), counts[StageFailed], err)
	o.logger.Debug().Str("from", old.String()).Str("to", state.String()).Msg("batch state")
}

// Close cancels any work in flight and closes the Done channel.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.abortRunLocked()
	o.closed = true
	close(o.done)
}
