// Package events provides the in-process event bus used to fan batch,
// category and file-list changes out to renderers and notifiers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ragdesk/ragdesk/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	// Upload item events
	EventItemQueued   EventType = "item_queued"   // Item added to (or replaced in) the batch
	EventItemProgress EventType = "item_progress" // Progress or stage changed
	EventItemFailed   EventType = "item_failed"   // Item reached the failed stage
	EventItemRemoved  EventType = "item_removed"  // Item removed from the batch

	// EventBatchState is published on every derived batch state transition
	EventBatchState EventType = "batch_state"

	// Category registry events
	EventCategoryChanged EventType = "category_changed" // Option set or assignment changed
	EventSyncFailed      EventType = "sync_failed"      // Best-effort backend sync failed

	// EventFileListRefreshed is published after each canonical list refresh attempt
	EventFileListRefreshed EventType = "file_list_refreshed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ItemEvent carries a snapshot of one upload item.
type ItemEvent struct {
	BaseEvent
	ItemID      string
	Name        string
	Size        int64
	Progress    int    // 0..100, monotonic per item
	Stage       string // queued, uploading, processing, done, failed
	Transferred bool
	Error       error
}

// BatchEvent represents a batch state transition.
type BatchEvent struct {
	BaseEvent
	OldState string
	NewState string
	Items    int
	Failed   int
	Error    error
}

// CategoryEvent represents a registry mutation.
type CategoryEvent struct {
	BaseEvent
	Action   string // "assign", "create", "delete", "hydrate"
	Filename string
	Value    string
	Label    string
	Error    error // set for EventSyncFailed
}

// FileListEvent represents a refresh of the canonical server file list.
type FileListEvent struct {
	BaseEvent
	Count int
	Error error // non-nil when the refresh failed and the cached snapshot was kept
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
// Events for a full subscriber buffer are dropped and counted.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishBatchState is a convenience method for publishing batch transitions
func (eb *EventBus) PublishBatchState(oldState, newState string, items, failed int, err error) {
	eb.Publish(&BatchEvent{
		BaseEvent: BaseEvent{
			EventType: EventBatchState,
			Time:      time.Now(),
		},
		OldState: oldState,
		NewState: newState,
		Items:    items,
		Failed:   failed,
		Error:    err,
	})
}

// PublishCategory is a convenience method for publishing registry events
func (eb *EventBus) PublishCategory(eventType EventType, action, filename, value, label string, err error) {
	eb.Publish(&CategoryEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Time:      time.Now(),
		},
		Action:   action,
		Filename: filename,
		Value:    value,
		Label:    label,
		Error:    err,
	})
}

// PublishFileList is a convenience method for publishing list refresh events
func (eb *EventBus) PublishFileList(count int, err error) {
	eb.Publish(&FileListEvent{
		BaseEvent: BaseEvent{
			EventType: EventFileListRefreshed,
			Time:      time.Now(),
		},
		Count: count,
		Error: err,
	})
}

// Unsubscribe removes a subscription channel from a specific event type
// This prevents memory leaks from abandoned subscriptions
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types
// Use this when cleaning up a subscriber that subscribed to multiple event types
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
