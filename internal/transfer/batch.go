package transfer

import (
	"sync"
	"time"

	"github.com/ragdesk/ragdesk/internal/events"
)

// Batch is the ordered set of upload items for one session. It is the only
// place item state lives. Every mutation is applied and published under its
// lock, so subscribers see an item's snapshots in the order they were made.
// EventBus.Publish never blocks, which keeps this safe.
type Batch struct {
	items    []UploadItem
	mu       sync.RWMutex
	eventBus *events.EventBus
}

// NewBatch creates an empty batch. bus may be nil.
func NewBatch(bus *events.EventBus) *Batch {
	return &Batch{
		eventBus: bus,
	}
}

// Add appends item, or replaces an existing item with the same file name in
// place (last write wins). It returns the stored item.
func (b *Batch) Add(item UploadItem) UploadItem {
	b.mu.Lock()
	replaced := false
	for i := range b.items {
		if b.items[i].Name() == item.Name() {
			b.items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		b.items = append(b.items, item)
	}
	b.publishLocked(events.EventItemQueued, item)
	b.mu.Unlock()
	return item
}

// Update applies fn to the item with the given id. It returns the new value
// and false if no such item exists.
func (b *Batch) Update(id string, fn func(UploadItem) UploadItem) (UploadItem, bool) {
	b.mu.Lock()
	idx := b.indexLocked(id)
	if idx < 0 {
		b.mu.Unlock()
		return UploadItem{}, false
	}
	before := b.items[idx]
	after := fn(before)
	b.items[idx] = after
	b.publishChangeLocked(before, after)
	b.mu.Unlock()
	return after, true
}

// UpdateAll applies fn to every item that matches.
func (b *Batch) UpdateAll(match func(UploadItem) bool, fn func(UploadItem) UploadItem) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for i := range b.items {
		if match != nil && !match(b.items[i]) {
			continue
		}
		before := b.items[i]
		b.items[i] = fn(before)
		b.publishChangeLocked(before, b.items[i])
		n++
	}
	return n
}

// Remove deletes the item with the given id.
func (b *Batch) Remove(id string) (UploadItem, bool) {
	b.mu.Lock()
	idx := b.indexLocked(id)
	if idx < 0 {
		b.mu.Unlock()
		return UploadItem{}, false
	}
	item := b.items[idx]
	b.items = append(b.items[:idx], b.items[idx+1:]...)
	b.publishLocked(events.EventItemRemoved, item)
	b.mu.Unlock()
	return item, true
}

// RemoveWhere deletes every item matching pred and returns them.
func (b *Batch) RemoveWhere(pred func(UploadItem) bool) []UploadItem {
	b.mu.Lock()
	var removed []UploadItem
	kept := b.items[:0]
	for _, item := range b.items {
		if pred(item) {
			removed = append(removed, item)
			continue
		}
		kept = append(kept, item)
	}
	// Zero the tail so dropped items are not retained by the backing array.
	for i := len(kept); i < len(b.items); i++ {
		b.items[i] = UploadItem{}
	}
	b.items = kept
	for _, item := range removed {
		b.publishLocked(events.EventItemRemoved, item)
	}
	b.mu.Unlock()
	return removed
}

// Clear removes every item.
func (b *Batch) Clear() []UploadItem {
	return b.RemoveWhere(func(UploadItem) bool { return true })
}

// Items returns a snapshot in insertion order.
func (b *Batch) Items() []UploadItem {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]UploadItem, len(b.items))
	copy(out, b.items)
	return out
}

// Get returns a copy of the item with the given id.
func (b *Batch) Get(id string) (UploadItem, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx := b.indexLocked(id)
	if idx < 0 {
		return UploadItem{}, false
	}
	return b.items[idx], true
}

// Len returns the number of items.
func (b *Batch) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Counts returns the number of items in each stage.
func (b *Batch) Counts() map[Stage]int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := make(map[Stage]int)
	for _, item := range b.items {
		counts[item.Stage]++
	}
	return counts
}

func (b *Batch) indexLocked(id string) int {
	for i := range b.items {
		if b.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Batch) publishChangeLocked(before, after UploadItem) {
	if before.Stage != StageFailed && after.Stage == StageFailed {
		b.publishLocked(events.EventItemFailed, after)
		return
	}
	if before.Progress != after.Progress || before.Stage != after.Stage || before.Transferred != after.Transferred {
		b.publishLocked(events.EventItemProgress, after)
	}
}

// publishLocked emits an item snapshot. Must be called with b.mu held.
func (b *Batch) publishLocked(eventType events.EventType, item UploadItem) {
	if b.eventBus == nil {
		return
	}
	b.eventBus.Publish(&events.ItemEvent{
		BaseEvent: events.BaseEvent{
			EventType: eventType,
			Time:      time.Now(),
		},
		ItemID:      item.ID,
		Name:        item.Name(),
		Size:        item.Source.Size,
		Progress:    item.Progress,
		Stage:       item.Stage.String(),
		Transferred: item.Transferred,
		Error:       item.Err,
	})
}
