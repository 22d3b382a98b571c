package transfer

import (
	"context"
	"sync"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/constants"
	rhttp "github.com/ragdesk/ragdesk/internal/http"
	"github.com/ragdesk/ragdesk/internal/logging"
	"github.com/ragdesk/ragdesk/internal/resources"
)

// Uploader transfers one file's bytes to the backend.
type Uploader interface {
	UploadFile(ctx context.Context, userID string, req api.UploadRequest, onProgress func(percent int)) error
}

// Executor uploads every queued item of a batch concurrently.
type Executor struct {
	uploader Uploader
	userID   string
	bands    Bands
	retry    rhttp.Config
	limiter  *resources.Manager
	logger   *logging.Logger
}

// NewExecutor creates an executor acting as userID.
func NewExecutor(uploader Uploader, userID string, bands Bands, retry rhttp.Config, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		uploader: uploader,
		userID:   userID,
		bands:    bands,
		retry:    retry,
		limiter:  resources.NewManager(resources.Config{}),
		logger:   logger.Component("executor"),
	}
}

// WithLimiter replaces the slot pool bounding parallel transfers.
func (e *Executor) WithLimiter(m *resources.Manager) *Executor {
	if m != nil {
		e.limiter = m
	}
	return e
}

// Upload transfers every item that is queued when the call starts and waits
// until each has either transferred or failed. One item's failure never
// cancels its siblings. The returned slice holds one *api.TransferError per
// failed item, in batch order.
func (e *Executor) Upload(ctx context.Context, batch *Batch) []error {
	var queued []UploadItem
	for _, item := range batch.Items() {
		if item.Stage == StageQueued {
			queued = append(queued, item)
		}
	}
	if len(queued) == 0 {
		return nil
	}

	e.logger.Info().
		Int("items", len(queued)).
		Int("slots", e.limiter.GetTotalSlots()).
		Msg("starting transfers")

	results := make([]error, len(queued))
	var wg sync.WaitGroup
	for i, item := range queued {
		wg.Add(1)
		go func(i int, item UploadItem) {
			defer wg.Done()
			if err := e.limiter.Acquire(ctx, item.ID); err != nil {
				terr := &api.TransferError{Filename: item.Name(), Err: err}
				batch.Update(item.ID, func(cur UploadItem) UploadItem {
					return Fail(cur, terr)
				})
				results[i] = terr
				return
			}
			defer e.limiter.Release(item.ID)
			results[i] = e.uploadOne(ctx, batch, item)
		}(i, item)
	}
	wg.Wait()

	var errs []error
	for _, err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (e *Executor) uploadOne(ctx context.Context, batch *Batch, item UploadItem) error {
	id := item.ID
	batch.Update(id, func(cur UploadItem) UploadItem {
		return SetStage(cur, StageUploading)
	})

	onProgress := func(raw int) {
		batch.Update(id, func(cur UploadItem) UploadItem {
			return Merge(cur, e.bands, SourceTransfer, raw)
		})
	}

	retryCfg := e.retry
	retryCfg.OnRetry = func(attempt int, err error, errType rhttp.ErrorType) {
		e.logger.Warn().
			Str("file", item.Name()).
			Int("attempt", attempt).
			Str("error_type", rhttp.ErrorTypeName(errType)).
			Err(err).
			Msg("retrying upload")
	}

	err := rhttp.ExecuteWithRetry(ctx, retryCfg, func() error {
		body, err := item.Source.Open()
		if err != nil {
			return err
		}
		defer body.Close()

		return e.uploader.UploadFile(ctx, e.userID, api.UploadRequest{
			Filename:    item.Name(),
			ContentType: item.Source.ContentType,
			Size:        item.Source.Size,
			Body:        body,
		}, onProgress)
	})

	if err != nil {
		terr := &api.TransferError{Filename: item.Name(), Err: err}
		batch.Update(id, func(cur UploadItem) UploadItem {
			return Fail(cur, terr)
		})
		e.logger.Error().Str("file", item.Name()).Err(err).Msg("transfer failed")
		return terr
	}

	batch.Update(id, func(cur UploadItem) UploadItem {
		cur = Merge(cur, e.bands, SourceTransfer, constants.MaxPercent)
		if cur.Stage == StageFailed {
			return cur
		}
		cur.Transferred = true
		return SetStage(cur, StageProcessing)
	})
	e.logger.Debug().Str("file", item.Name()).Msg("transfer complete")
	return nil
}
