package sync

import (
	gosync "sync"
	"time"

	"github.com/kimhsiao/taskin/backend/internal/models"
)

// SyncEventType names a sync lifecycle notification.
type SyncEventType string

const (
	SyncEventStarted            SyncEventType = "sync.started"
	SyncEventCompleted          SyncEventType = "sync.completed"
	SyncEventFailed             SyncEventType = "sync.failed"
	SyncEventRecurringGenerated SyncEventType = "recurring.generated"
)

// SyncEvent is published on every cycle transition.
type SyncEvent struct {
	Type      SyncEventType    `json:"type"`
	Message   string           `json:"message,omitempty"`
	Code      string           `json:"code,omitempty"`
	Cursor    models.Timestamp `json:"cursor,omitzero"`
	Pushed    int              `json:"pushed,omitempty"`
	Applied   int              `json:"applied,omitempty"`
	Conflicts int              `json:"conflicts,omitempty"`
	Created   int              `json:"created,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// SyncEventHandler receives sync events.
type SyncEventHandler interface {
	OnSyncEvent(event SyncEvent)
}

// EventBus fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type EventBus struct {
	mu     gosync.RWMutex
	subs   map[int]chan SyncEvent
	nextID int
}

// NewEventBus creates an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan SyncEvent)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// function unsubscribes and closes the channel.
func (b *EventBus) Subscribe(buffer int) (<-chan SyncEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan SyncEvent, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once gosync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers event to every subscriber that has room.
func (b *EventBus) Publish(event SyncEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// OnSyncEvent lets the bus be installed as an engine event handler.
func (b *EventBus) OnSyncEvent(event SyncEvent) {
	b.Publish(event)
}

// Subscribers returns the number of active subscribers.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
