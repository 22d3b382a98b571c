// Package resources bounds how many file transfers run at once.
package resources

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/ragdesk/ragdesk/internal/constants"
)

// Manager hands out upload slots to transfers. A transfer holds exactly one
// slot from Acquire until Release.
type Manager struct {
	slots    chan struct{}
	total    int
	baseline int // derived from CPU cores

	mu     sync.Mutex
	active map[string]struct{} // transfer id -> holding a slot
	peak   int
}

// Config holds configuration for the resource manager
type Config struct {
	MaxConcurrent int // User-specified limit (0 = auto-detect)
}

// NewManager creates a new resource manager
func NewManager(config Config) *Manager {
	baseline := runtime.NumCPU() * 2
	if baseline > constants.MaxBaselineUploads {
		baseline = constants.MaxBaselineUploads
	}

	total := baseline
	if config.MaxConcurrent > 0 {
		total = config.MaxConcurrent
	}
	if total > constants.AbsoluteMaxUploads {
		total = constants.AbsoluteMaxUploads
	}
	if total < constants.MinUploads {
		total = constants.MinUploads
	}

	return &Manager{
		slots:    make(chan struct{}, total),
		total:    total,
		baseline: baseline,
		active:   make(map[string]struct{}),
	}
}

// Acquire blocks until a slot is free for transferID or ctx is done.
// Acquiring twice for the same id is an error.
func (m *Manager) Acquire(ctx context.Context, transferID string) error {
	m.mu.Lock()
	if _, held := m.active[transferID]; held {
		m.mu.Unlock()
		return fmt.Errorf("transfer %s already holds a slot", transferID)
	}
	m.mu.Unlock()

	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	m.active[transferID] = struct{}{}
	if len(m.active) > m.peak {
		m.peak = len(m.active)
	}
	m.mu.Unlock()
	return nil
}

// Release frees the slot held by transferID. Unknown ids are ignored.
func (m *Manager) Release(transferID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.active[transferID]; !held {
		return
	}
	delete(m.active, transferID)
	<-m.slots
}

// GetTotalSlots returns the pool size
func (m *Manager) GetTotalSlots() int {
	return m.total
}

// GetAvailableSlots returns the number of free slots
func (m *Manager) GetAvailableSlots() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total - len(m.active)
}

// GetStats returns current resource manager statistics
func (m *Manager) GetStats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ManagerStats{
		TotalSlots:      m.total,
		AvailableSlots:  m.total - len(m.active),
		ActiveTransfers: len(m.active),
		PeakTransfers:   m.peak,
		BaselineSlots:   m.baseline,
	}
}

// ManagerStats holds statistics about the resource manager
type ManagerStats struct {
	TotalSlots      int
	AvailableSlots  int
	ActiveTransfers int
	PeakTransfers   int // highest ActiveTransfers seen since creation
	BaselineSlots   int
}

func (m *Manager) String() string {
	s := m.GetStats()
	return fmt.Sprintf("Resources: %d/%d slots in use (baseline %d)", s.ActiveTransfers, s.TotalSlots, s.BaselineSlots)
}
