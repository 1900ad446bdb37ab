package gateway

import (
	"sync"
	"time"
)

// Breaker states.
const (
	stateClosed = iota
	stateOpen
	stateHalfOpen
)

// DefaultFailureThreshold opens the breaker after this many consecutive
// transient failures.
const DefaultFailureThreshold = 5

// DefaultCooldown is how long an open breaker rejects calls before letting a
// single probe through.
const DefaultCooldown = 30 * time.Second

// breaker is a consecutive-failure circuit breaker. While open, calls fail
// fast; after the cooldown one probe is admitted, and its outcome decides
// between closing again and another cooldown.
type breaker struct {
	mu        sync.Mutex
	state     int
	failures  int
	openedAt  time.Time
	probing   bool
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func newBreaker(threshold int, cooldown time.Duration, now func() time.Time) *breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &breaker{threshold: threshold, cooldown: cooldown, now: now}
}

// Allow reports whether a call may proceed.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = stateHalfOpen
		b.probing = true
		return true
	case stateHalfOpen:
		// Exactly one probe in flight at a time.
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Success records a successful call and closes the breaker.
func (b *breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.failures = 0
	b.probing = false
}

// Failure records a transient failure; crossing the threshold (or failing the
// half-open probe) opens the breaker.
func (b *breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.state = stateOpen
		b.openedAt = b.now()
		b.probing = false
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}

// Open reports whether calls are currently rejected.
func (b *breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && b.now().Sub(b.openedAt) < b.cooldown
}
