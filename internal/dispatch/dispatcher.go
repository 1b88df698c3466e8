// Package dispatch routes decoded gateway events to subscribers. Delivery is
// ordered per event stream and at-least-once across a session resume: a
// resumed session may replay events subscribers have already seen.
package dispatch

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Handler receives one event's raw payload. Handlers for the same event run
// sequentially in registration order; a handler that blocks delays every
// later handler and every later event.
type Handler func(event string, data json.RawMessage)

// HandlerID identifies a subscription for removal.
type HandlerID uint64

type subscription struct {
	id HandlerID
	fn Handler
}

// Dispatcher fans events out to subscribers. The zero value is not usable;
// construct with New.
type Dispatcher struct {
	log *slog.Logger

	mu       sync.RWMutex
	nextID   HandlerID
	handlers map[string][]subscription
}

// New creates an empty dispatcher.
func New(log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		log:      log,
		handlers: make(map[string][]subscription),
	}
}

// Subscribe registers a handler for an event name and returns an id for
// Unsubscribe. The empty event name subscribes to every event.
func (d *Dispatcher) Subscribe(event string, fn Handler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.handlers[event] = append(d.handlers[event], subscription{id: id, fn: fn})
	return id
}

// Unsubscribe removes a subscription. Removing an unknown id is a no-op.
func (d *Dispatcher) Unsubscribe(id HandlerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for event, subs := range d.handlers {
		for i, sub := range subs {
			if sub.id == id {
				d.handlers[event] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Dispatch delivers one event to its subscribers and to wildcard
// subscribers, in registration order. A panicking handler is logged and
// skipped; it does not take down the session's receive loop or starve the
// handlers after it.
func (d *Dispatcher) Dispatch(event string, data json.RawMessage) {
	d.mu.RLock()
	subs := make([]subscription, 0, len(d.handlers[event])+len(d.handlers[""]))
	subs = append(subs, d.handlers[event]...)
	subs = append(subs, d.handlers[""]...)
	d.mu.RUnlock()

	for _, sub := range subs {
		d.deliver(event, data, sub)
	}
}

func (d *Dispatcher) deliver(event string, data json.RawMessage, sub subscription) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event handler panicked",
				"event", event, "handler_id", uint64(sub.id), "panic", r)
		}
	}()
	sub.fn(event, data)
}
