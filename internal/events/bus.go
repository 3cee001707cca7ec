// Package events provides event management functionality.
//
// UI surfaces consume dataset lifecycle events over a websocket fed from this
// bus, instead of holding direct callback references into panels. A slow or
// torn-down consumer loses events rather than blocking publishers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	DatasetRegistered EventType = "DATASET_REGISTERED"
	DatasetUpdated    EventType = "DATASET_UPDATED"
	DatasetRemoved    EventType = "DATASET_REMOVED"
	DatasetActivated  EventType = "DATASET_ACTIVATED"
	CacheCleared      EventType = "CACHE_CLEARED"
	BackupCompleted   EventType = "BACKUP_COMPLETED"
	ErrorOccurred     EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Module    string         `json:"module"`
	Data      map[string]any `json:"data"`
}

// Bus is an in-process pub/sub fan-out. Subscribers receive events on
// buffered channels; events are dropped per-subscriber when the buffer is
// full.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	log         zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string]chan Event),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a new consumer and returns its id plus the delivery
// channel. The channel is closed on Unsubscribe.
func (b *Bus) Subscribe() (string, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Event, 64)
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a consumer and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish delivers an event to all subscribers. Never blocks: a subscriber
// whose buffer is full misses the event.
func (b *Bus) Publish(eventType EventType, module string, data map[string]any) {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.log.Warn().
				Str("subscriber", id).
				Str("event_type", string(eventType)).
				Msg("Subscriber buffer full, dropping event")
		}
	}

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Msg("Event published")
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
