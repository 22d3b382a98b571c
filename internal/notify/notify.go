// Package notify sends desktop notifications when an upload batch settles.
// It uses github.com/gen2brain/beeep for cross-platform notification support.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/ragdesk/ragdesk/internal/events"
	"github.com/ragdesk/ragdesk/internal/logging"
	"github.com/ragdesk/ragdesk/internal/util/strings"
)

const appTitle = "ragdesk"

// Notifier handles desktop notifications.
type Notifier struct {
	logger  *logging.Logger
	enabled bool
	cfg     Config
	mu      sync.RWMutex

	// send delivers the notification; replaced in tests.
	send func(title, message string) error
}

// Config holds notification configuration.
type Config struct {
	// Enabled determines if notifications are sent.
	Enabled bool

	// ShowBatchComplete notifies when every file in a batch is ingested.
	ShowBatchComplete bool

	// ShowBatchFailed notifies when a batch settles with failures.
	ShowBatchFailed bool
}

// DefaultConfig returns the default notification configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:           true,
		ShowBatchComplete: true,
		ShowBatchFailed:   true,
	}
}

// NewNotifier creates a new notifier with the given configuration.
func NewNotifier(cfg *Config, logger *logging.Logger) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Notifier{
		logger:  logger.Component("notify"),
		enabled: cfg.Enabled,
		cfg:     *cfg,
		send:    beeepNotify,
	}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// BatchComplete announces a fully ingested batch.
func (n *Notifier) BatchComplete(files int) {
	if !n.IsEnabled() || !n.cfg.ShowBatchComplete {
		return
	}

	message := fmt.Sprintf("%d %s uploaded and ingested.", files, strings.Pluralize("file", int64(files)))
	if err := n.send(appTitle, message); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to send batch complete notification")
	}
}

// BatchFailed announces a batch that settled with failed items.
func (n *Notifier) BatchFailed(failed, total int, errorMsg string) {
	if !n.IsEnabled() || !n.cfg.ShowBatchFailed {
		return
	}

	message := fmt.Sprintf("%d of %d %s failed", failed, total, strings.Pluralize("file", int64(total)))
	if errorMsg != "" {
		message += ":\n" + truncate(errorMsg, 100)
	}
	if err := n.send(appTitle+" upload failed", message); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to send batch failed notification")
	}
}

// Watch notifies on every settled batch state published on ch until ch is
// closed or ctx is done.
func (n *Notifier) Watch(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			be, ok := ev.(*events.BatchEvent)
			if !ok {
				continue
			}
			switch be.NewState {
			case "settled_done":
				n.BatchComplete(be.Items)
			case "settled_failed":
				msg := ""
				if be.Error != nil {
					msg = be.Error.Error()
				}
				n.BatchFailed(be.Failed, be.Items, msg)
			}
		}
	}
}

// Beep plays the system beep.
func (n *Notifier) Beep() {
	if !n.IsEnabled() {
		return
	}
	_ = beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
}

// beeepNotify uses toast notifications on Windows, the notification centre
// on macOS and D-Bus on Linux.
func beeepNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
