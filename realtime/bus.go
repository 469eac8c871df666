package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Handler receives the opaque payload of an inbound event.
type Handler func(data json.RawMessage)

// Subscription identifies one registered handler. Function values are not
// comparable in Go, so unsubscribing takes the handle returned by Subscribe.
type Subscription struct {
	event EventName
	fn    Handler

	mu     sync.Mutex
	active bool
}

// Event returns the event name this subscription is registered for.
func (s *Subscription) Event() EventName {
	return s.event
}

func (s *Subscription) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Subscription) deactivate() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// bus is the handler registry behind Subscribe/Unsubscribe/Emit. Dispatch
// happens on the connection's single read goroutine; the registry itself may
// be mutated from any goroutine, including from inside a handler.
type bus struct {
	mu       sync.Mutex
	handlers map[EventName][]*Subscription
	log      *slog.Logger
}

func newBus(log *slog.Logger) *bus {
	return &bus{
		handlers: make(map[EventName][]*Subscription),
		log:      log,
	}
}

func (b *bus) subscribe(event EventName, fn Handler) *Subscription {
	sub := &Subscription{event: event, fn: fn, active: true}
	b.mu.Lock()
	b.handlers[event] = append(b.handlers[event], sub)
	b.mu.Unlock()
	return sub
}

func (b *bus) unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.deactivate()

	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[sub.event]
	for i, s := range subs {
		if s == sub {
			b.handlers[sub.event] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[sub.event]) == 0 {
		delete(b.handlers, sub.event)
	}
}

func (b *bus) unsubscribeAll(event EventName) {
	b.mu.Lock()
	subs := b.handlers[event]
	delete(b.handlers, event)
	b.mu.Unlock()

	for _, s := range subs {
		s.deactivate()
	}
}

// dispatch invokes handlers for event in registration order. It snapshots
// the handler list first so a handler mutating the registry mid-dispatch
// cannot skip or double-invoke its peers; a subscription cancelled before
// its turn is skipped.
func (b *bus) dispatch(event EventName, data json.RawMessage) {
	b.mu.Lock()
	snapshot := make([]*Subscription, len(b.handlers[event]))
	copy(snapshot, b.handlers[event])
	b.mu.Unlock()

	for _, sub := range snapshot {
		if !sub.isActive() {
			continue
		}
		sub.fn(data)
	}
}
