package transfer

import (
	"github.com/ragdesk/ragdesk/internal/constants"
)

// Stage is an upload item's lifecycle stage. The non-failed stages are
// ordered; StageFailed is terminal.
type Stage int

const (
	StageQueued Stage = iota
	StageUploading
	StageProcessing
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageQueued:
		return "queued"
	case StageUploading:
		return "uploading"
	case StageProcessing:
		return "processing"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// ProgressSource identifies which asynchronous feed produced a raw percentage.
type ProgressSource int

const (
	// SourceTransfer is byte progress of the network upload.
	SourceTransfer ProgressSource = iota
	// SourceIngestion is the backend's processing percentage.
	SourceIngestion
)

func (s ProgressSource) String() string {
	if s == SourceIngestion {
		return "ingestion"
	}
	return "transfer"
}

// Bands splits the displayed 0..100 range between the two sources. Transfer
// fills 0..TransferCeiling, ingestion fills the rest.
type Bands struct {
	TransferCeiling int
}

// DefaultBands returns the 80/20 split.
func DefaultBands() Bands {
	return Bands{TransferCeiling: constants.TransferBandCeiling}
}

func (b Bands) ceiling() int {
	if b.TransferCeiling <= 0 || b.TransferCeiling >= constants.MaxPercent {
		return constants.TransferBandCeiling
	}
	return b.TransferCeiling
}

// Map converts a raw 0..100 reading from src into the displayed percentage.
//
//	transfer:  min(ceiling, raw*ceiling/100)
//	ingestion: ceiling + round(raw*(100-ceiling)/100)
func (b Bands) Map(src ProgressSource, raw int) int {
	raw = clampPercent(raw)
	c := b.ceiling()

	if src == SourceIngestion {
		// Integer round-half-up; raw and the band are non-negative.
		return c + (raw*(constants.MaxPercent-c)+50)/100
	}

	mapped := raw * c / 100
	if mapped > c {
		mapped = c
	}
	return mapped
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > constants.MaxPercent {
		return constants.MaxPercent
	}
	return p
}

// Advance raises the item's progress to candidate if that is higher. Progress
// never decreases, and a failed item is left untouched.
func Advance(item UploadItem, candidate int) UploadItem {
	if item.Stage == StageFailed {
		return item
	}
	candidate = clampPercent(candidate)
	if candidate > item.Progress {
		item.Progress = candidate
	}
	return item
}

// SetStage moves the item forward to stage. Moving backwards is a no-op, as
// is any change once the item has failed. StageFailed is reachable from every
// non-terminal stage.
func SetStage(item UploadItem, stage Stage) UploadItem {
	if item.Stage == StageFailed {
		return item
	}
	if stage == StageFailed {
		if item.Stage == StageDone {
			return item
		}
		item.Stage = StageFailed
		return item
	}
	if stage > item.Stage {
		item.Stage = stage
	}
	return item
}

// Merge maps a raw reading from src through bands and advances the item.
// It is the single entry point both progress feeds use.
func Merge(item UploadItem, bands Bands, src ProgressSource, raw int) UploadItem {
	return Advance(item, bands.Map(src, raw))
}

// Fail marks the item failed with err unless it is already terminal.
func Fail(item UploadItem, err error) UploadItem {
	if item.Stage.Terminal() {
		return item
	}
	item = SetStage(item, StageFailed)
	item.Err = err
	return item
}
