// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types for the affect pipeline
const (
	// Audio events
	EventTypeChunkDispatched EventType = "audio.chunk_dispatched"
	EventTypeChunkSkipped    EventType = "audio.chunk_skipped"
	EventTypeCaptureStarted  EventType = "audio.capture_started"
	EventTypeCaptureStopped  EventType = "audio.capture_stopped"

	// Modality events (one-shot per failure episode)
	EventTypeVoiceLost      EventType = "modality.voice_lost"
	EventTypeVoiceRecovered EventType = "modality.voice_recovered"
	EventTypeFaceLost       EventType = "modality.face_lost"
	EventTypeFaceRecovered  EventType = "modality.face_recovered"

	// Fusion events
	EventTypeFusedVector EventType = "fusion.vector"
	EventTypeVoiceGated  EventType = "fusion.voice_gated"

	// Policy events
	EventTypeRewardComputed EventType = "policy.reward_computed"
	EventTypeActionChosen   EventType = "policy.action_chosen"

	// Session events
	EventTypeSessionStarted EventType = "session.started"
	EventTypeSessionStopped EventType = "session.stopped"

	// Config events
	EventTypeConfigUpdated EventType = "config.updated"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// Publish sends an event to all subscribed handlers. Each handler runs on its
// own goroutine, so delivery order across events is not guaranteed; pipeline
// ordering lives in the serial producers, and the bus is observability-only.
// Subscribers that need ordering must be fed through PublishSync.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlers {
		// Call handlers in goroutines to avoid blocking
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}
