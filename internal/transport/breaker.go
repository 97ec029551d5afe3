package transport

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is wrapped by the Error returned while an endpoint is
// cooling down.
var ErrCircuitOpen = errors.New("circuit open")

const (
	breakerMaxCooldown = 2 * time.Minute
	breakerResetAfter  = 5 * time.Minute
)

// circuit tracks consecutive failed sends for one endpoint.
type circuit struct {
	fails       int
	openUntil   time.Time
	lastFailure time.Time
}

// breaker is a consecutive-failure circuit breaker with exponential
// cooldown, keyed by endpoint. A long quiet period after the last failure
// resets the count.
type breaker struct {
	trip     int
	cooldown time.Duration

	mu sync.Mutex
	m  map[string]*circuit
}

func newBreaker(trip int, cooldown time.Duration) *breaker {
	if trip < 0 {
		return nil
	}
	return &breaker{trip: trip, cooldown: cooldown, m: map[string]*circuit{}}
}

func (b *breaker) get(key string) *circuit {
	c := b.m[key]
	if c == nil {
		c = &circuit{}
		b.m[key] = c
	}
	return c
}

func (b *breaker) expire(c *circuit, now time.Time) {
	if !c.lastFailure.IsZero() && now.Sub(c.lastFailure) > breakerResetAfter {
		c.fails = 0
		c.openUntil = time.Time{}
	}
}

// open reports whether key is cooling down and until when.
func (b *breaker) open(key string, now time.Time) (bool, time.Time) {
	if b == nil {
		return false, time.Time{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(key)
	b.expire(c, now)
	if !c.openUntil.IsZero() && now.Before(c.openUntil) {
		return true, c.openUntil
	}
	return false, time.Time{}
}

func (b *breaker) record(key string, now time.Time, ok bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(key)
	b.expire(c, now)
	if ok {
		delete(b.m, key)
		return
	}
	c.fails++
	c.lastFailure = now
	if c.fails < b.trip {
		return
	}
	d := b.cooldown
	for i := 0; i < c.fails-b.trip && d < breakerMaxCooldown; i++ {
		d *= 2
	}
	c.openUntil = now.Add(min(d, breakerMaxCooldown))
}

// openCount returns how many endpoints are cooling down.
func (b *breaker) openCount(now time.Time) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.m {
		if !c.openUntil.IsZero() && now.Before(c.openUntil) {
			n++
		}
	}
	return n
}
