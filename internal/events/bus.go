package events

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventHandler handles one published event.
type EventHandler func(*Event)

// Subscription identifies a registered handler, for Unsubscribe.
type Subscription struct {
	eventType EventType
	id        uint64
}

// Bus is a synchronous pub/sub dispatcher. Emit runs every subscriber on the
// calling goroutine, in registration order, before returning. Spec §5 forbids
// any subsystem from running concurrently with the tick loop ("no subsystem
// may block the loop" presumes the loop, not a fan-out of goroutines, is the
// one driving everything) — handlers like the activation history write and
// metrics counters must observe the tick's own state, not a snapshot raced
// against the next one.
type Bus struct {
	subscribers map[EventType]map[uint64]EventHandler
	nextID      uint64
	mu          sync.RWMutex
	log         zerolog.Logger
}

// NewBus creates an empty event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType]map[uint64]EventHandler),
		log:         log.With().Str("service", "events").Logger(),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType EventType, handler EventHandler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	if _, ok := b.subscribers[eventType]; !ok {
		b.subscribers[eventType] = make(map[uint64]EventHandler)
	}

	b.subscribers[eventType][id] = handler

	return Subscription{
		eventType: eventType,
		id:        id,
	}
}

// Unsubscribe removes a previously registered handler. Safe to call more
// than once.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.subscribers[sub.eventType]; ok {
		delete(handlers, sub.id)
		if len(handlers) == 0 {
			delete(b.subscribers, sub.eventType)
		}
	}
}

// Emit publishes an event to every subscriber of eventType, synchronously,
// on the calling goroutine. A handler that panics or blocks stalls the
// caller — this is the tick loop's own decision to make, not the bus's;
// handlers are expected to be quick and non-blocking, per spec §5.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	// Snapshot handlers so a handler that subscribes/unsubscribes mid-dispatch
	// doesn't mutate the map while we're ranging over it.
	b.mu.RLock()
	var handlers []EventHandler
	if registered := b.subscribers[eventType]; len(registered) > 0 {
		// Subscription ids grow monotonically, so sorting them yields
		// registration order.
		ids := make([]uint64, 0, len(registered))
		for id := range registered {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		handlers = make([]EventHandler, 0, len(registered))
		for _, id := range ids {
			handlers = append(handlers, registered[id])
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Int("subscribers", len(handlers)).
		Msg("event emitted")
}
