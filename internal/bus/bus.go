// Package bus implements spec.md §5's event bus: reliable per-subscriber
// delivery of job phase transitions, with a slow consumer disconnected
// rather than silently starved of events.
package bus

import (
	"sync"

	"github.com/adamnew123456/jobmon/internal/jobcore"
	"github.com/google/uuid"
)

// watermark is the per-subscriber channel capacity. A subscriber that
// falls this far behind is disconnected; spec.md §5 forbids dropping
// individual events in its place.
const watermark = 128

type subscriber struct {
	ch     chan jobcore.Event
	closed bool
	mu     sync.Mutex
}

func (s *subscriber) send(e jobcore.Event) (delivered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- e:
		return true
	default:
		s.closeLocked()
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *subscriber) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Bus fans out jobcore.Events to every live subscriber. The zero value
// is not usable; construct with New.
type Bus struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*subscriber
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[uuid.UUID]*subscriber)}
}

// Subscribe registers a new listener and returns its handle and receive
// channel. The channel is closed when Unsubscribe is called, or when the
// bus disconnects it for falling behind.
func (b *Bus) Subscribe() (uuid.UUID, <-chan jobcore.Event) {
	id := uuid.New()
	sub := &subscriber{ch: make(chan jobcore.Event, watermark)}

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	return id, sub.ch
}

// Unsubscribe removes and closes the subscriber named by id. It is
// idempotent: unsubscribing an unknown or already-removed id is a no-op.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Publish delivers e to every current subscriber. A subscriber whose
// channel is full is disconnected and its channel closed; Publish itself
// never blocks regardless of how slow a listener is.
func (b *Bus) Publish(e jobcore.Event) {
	b.mu.RLock()
	targets := make(map[uuid.UUID]*subscriber, len(b.subs))
	for id, sub := range b.subs {
		targets[id] = sub
	}
	b.mu.RUnlock()

	var stale []uuid.UUID
	for id, sub := range targets {
		if !sub.send(e) {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return
	}

	b.mu.Lock()
	for _, id := range stale {
		delete(b.subs, id)
	}
	b.mu.Unlock()
}

// Count reports the current number of live subscribers; used by tests
// and diagnostics only.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
