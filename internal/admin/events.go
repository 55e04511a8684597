package admin

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event names published on the admin bus.
const (
	EventClientConnected    = "client:connected"
	EventClientDisconnected = "client:disconnected"
	EventMetricsUpdate      = "metrics:update"
	EventErrorOccurred      = "error:occurred"
	EventBanAdded           = "ban:added"
	EventBanRemoved         = "ban:removed"
	EventAuditEntry         = "audit:entry"
)

var eventCatalog = map[string]bool{
	EventClientConnected:    true,
	EventClientDisconnected: true,
	EventMetricsUpdate:      true,
	EventErrorOccurred:      true,
	EventBanAdded:           true,
	EventBanRemoved:         true,
	EventAuditEntry:         true,
}

// KnownEvent reports whether a name is in the published catalog.
func KnownEvent(name string) bool {
	return eventCatalog[name]
}

// Event is one bus message.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Subscriber receives events over a buffered channel. A subscriber that
// cannot keep up loses events rather than blocking the bus.
type Subscriber struct {
	ID string
	C  <-chan Event

	ch     chan Event
	topics map[string]bool
	mu     sync.Mutex
}

// Subscribe narrows the subscriber to the named event types. Unknown
// names are ignored. With no topics set, all events are delivered.
func (s *Subscriber) Subscribe(types ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range types {
		if eventCatalog[t] {
			s.topics[t] = true
		}
	}
}

// Unsubscribe removes event types from the filter. Clearing the last
// topic restores delivery of everything.
func (s *Subscriber) Unsubscribe(types ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range types {
		delete(s.topics, t)
	}
}

func (s *Subscriber) wants(eventType string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.topics) == 0 {
		return true
	}
	return s.topics[eventType]
}

// EventBus fans admin events out to subscribers without ever blocking
// the publisher.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string]*Subscriber),
		bufferSize:  64,
	}
}

// AddSubscriber registers a new subscriber with its own delivery buffer.
func (b *EventBus) AddSubscriber() *Subscriber {
	ch := make(chan Event, b.bufferSize)
	sub := &Subscriber{
		ID:     uuid.NewString(),
		C:      ch,
		ch:     ch,
		topics: make(map[string]bool),
	}
	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()
	return sub
}

// RemoveSubscriber unregisters and closes a subscriber's channel.
func (b *EventBus) RemoveSubscriber(id string) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Publish delivers an event to every interested subscriber. Full buffers
// drop the event for that subscriber only.
func (b *EventBus) Publish(eventType string, data any) {
	if !eventCatalog[eventType] {
		log.Warn().Str("event", eventType).Msg("Dropping event with unknown type")
		return
	}
	ev := Event{Type: eventType, Timestamp: time.Now(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if !sub.wants(eventType) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			log.Debug().Str("subscriber", sub.ID).Str("event", eventType).Msg("Subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount returns the registered subscriber count.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unregisters every subscriber.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}
