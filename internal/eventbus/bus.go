package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the engine. Diagnostics use DiagPrefix + kind.
const (
	TypeQueued   = "dispatch.queued"
	TypeResolved = "dispatch.resolved"
	TypeFiltered = "dispatch.filtered"
	TypeRendered = "dispatch.rendered"
	TypeSent     = "dispatch.sent"
	TypeDropped  = "dispatch.dropped"
	TypeReloaded = "channels.reloaded"

	DispatchPrefix = "dispatch."
	DiagPrefix     = "diag."
)

// Event is an in-memory signal about a notification job or the engine.
// Data is a dispatch.Delivery for dispatch events, a diag.Diagnostic for
// diagnostics and the variable count for TypeReloaded.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event and its Dropped count grows.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int, prefixes ...string) (ch <-chan Event, unsubscribe func())
	Dropped() uint64
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

type subscriber struct {
	ch       chan Event
	prefixes []string
}

func (s *subscriber) wants(typ string) bool {
	if len(s.prefixes) == 0 {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(typ, p) {
			return true
		}
	}
	return false
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	seq     uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Holding the read lock while sending keeps unsubscribe from closing a
	// channel mid-send; sends never block.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a buffered channel receiving events whose type starts
// with one of prefixes, or every event when none are given.
func (b *memBus) Subscribe(buffer int, prefixes ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer), prefixes: append([]string(nil), prefixes...)}

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

// Dropped counts events lost to full subscriber buffers.
func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
