package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/constants"
	"github.com/ragdesk/ragdesk/internal/logging"
)

// ProgressFetcher reads the backend's per-user ingestion percentage.
type ProgressFetcher interface {
	GetProgress(ctx context.Context, userID string) (int, error)
}

// Poller repeatedly reads ingestion progress and folds it into the active
// items of a batch. At most one polling loop runs per Poller; Start cancels
// the previous loop before beginning a new one.
type Poller struct {
	fetcher     ProgressFetcher
	bands       Bands
	interval    time.Duration
	maxDuration time.Duration
	logger      *logging.Logger

	mu     sync.Mutex
	gen    uint64 // bumped by Start and Stop; a loop only applies ticks for its own generation
	cancel context.CancelFunc
	active bool
}

// NewPoller creates a poller. Out-of-range intervals are clamped and a
// non-positive maxDuration falls back to the default budget.
func NewPoller(fetcher ProgressFetcher, bands Bands, interval, maxDuration time.Duration, logger *logging.Logger) *Poller {
	if interval <= 0 {
		interval = constants.DefaultPollInterval
	}
	if interval < constants.MinPollInterval {
		interval = constants.MinPollInterval
	}
	if interval > constants.MaxPollInterval {
		interval = constants.MaxPollInterval
	}
	if maxDuration <= 0 {
		maxDuration = constants.DefaultPollMaxDuration
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{
		fetcher:     fetcher,
		bands:       bands,
		interval:    interval,
		maxDuration: maxDuration,
		logger:      logger.Component("poller"),
	}
}

// Start begins polling for userID, applying each reading to batch. onSettled
// is called exactly once with nil when the backend reports 100, or with a
// *api.PollError when polling fails or the budget runs out. It is not called
// if the loop is stopped or superseded first.
func (p *Poller) Start(ctx context.Context, userID string, batch *Batch, onSettled func(err error)) {
	pollCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen
	p.cancel = cancel
	p.active = true
	p.mu.Unlock()

	p.logger.Debug().Str("user", userID).Dur("interval", p.interval).Msg("polling started")
	go p.run(pollCtx, gen, userID, batch, onSettled)
}

// Stop cancels the running loop, if any. A tick already in flight is
// discarded rather than applied.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	p.active = false
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Active reports whether a polling loop is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Poller) run(ctx context.Context, gen uint64, userID string, batch *Batch, onSettled func(error)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	deadline := time.Now().Add(p.maxDuration)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		raw, err := p.fetcher.GetProgress(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error().Err(err).Msg("progress poll failed")
			p.finish(gen, &api.PollError{Err: err}, onSettled)
			return
		}

		if !p.apply(gen, batch, raw) {
			return
		}

		if raw >= constants.MaxPercent {
			p.logger.Info().Str("user", userID).Msg("ingestion complete")
			p.finish(gen, nil, onSettled)
			return
		}

		if time.Now().After(deadline) {
			err := fmt.Errorf("ingestion did not complete within %s (last progress %d%%)", p.maxDuration, raw)
			p.logger.Error().Err(err).Msg("polling budget exhausted")
			p.finish(gen, &api.PollError{Err: err}, onSettled)
			return
		}
	}
}

// apply folds one reading into every active item. It reports false if the
// loop has been stopped or superseded, in which case nothing is mutated.
func (p *Poller) apply(gen uint64, batch *Batch, raw int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen || !p.active {
		return false
	}

	stage := StageProcessing
	if raw >= constants.MaxPercent {
		stage = StageDone
	}

	batch.UpdateAll(
		func(item UploadItem) bool { return item.Active() },
		func(item UploadItem) UploadItem {
			item = Merge(item, p.bands, SourceIngestion, raw)
			return SetStage(item, stage)
		},
	)
	return true
}

func (p *Poller) finish(gen uint64, err error, onSettled func(error)) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.active = false
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()

	if onSettled != nil {
		onSettled(err)
	}
}
