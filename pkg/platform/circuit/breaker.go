// Package circuit implements a consecutive-failure circuit breaker for
// remote dependencies. Callers record outcomes; when failures pile up the
// breaker opens and callers should fail fast (or use a fallback) instead
// of hammering a dependency that is already down.
package circuit

import (
	"sync"
	"time"
)

// State is the breaker's current position.
type State int

const (
	// StateClosed means the dependency is healthy: use it.
	StateClosed State = iota
	// StateOpen means the dependency is failing: fail fast.
	StateOpen
)

// StateChange reports a transition caused by a recorded outcome. At most one
// field is true; both false means the outcome did not move the breaker.
type StateChange struct {
	Opened bool
	Closed bool
}

// Breaker counts consecutive failures and successes. Consecutive failures at
// or above the failure threshold open it; while open, consecutive successes
// at or above the success threshold close it again. An outcome of the
// opposite kind resets the in-progress count.
type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration

	mu        sync.Mutex
	state     State
	openedAt  time.Time
	failures  int
	successes int
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

// WithSuccessThreshold sets how many consecutive successes close an open
// breaker.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) { b.successThreshold = n }
}

// WithCooldown lets probe calls through after the breaker has been open for
// d. Zero (the default) keeps the breaker open until an explicit
// RecordSuccess or Reset.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) { b.cooldown = d }
}

// New creates a closed Breaker. Defaults: 5 failures to open, 1 success to
// close.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker's label for logs and metrics.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether callers should fail fast. With a cooldown set it
// returns false once the cooldown has elapsed, letting probe calls reach the
// dependency while the breaker stays open until one of them succeeds.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return false
	}
	if b.cooldown > 0 && time.Since(b.openedAt) >= b.cooldown {
		return false
	}
	return true
}

// RecordFailure notes a failed call. It returns whether the breaker is now
// open, plus the transition if this failure caused one.
func (b *Breaker) RecordFailure() (open bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes = 0
	if b.state == StateOpen {
		// A failed probe re-arms the cooldown.
		b.openedAt = time.Now()
		return true, StateChange{}
	}

	b.failures++
	if b.failures >= b.failureThreshold {
		b.state = StateOpen
		b.openedAt = time.Now()
		b.failures = 0
		return true, StateChange{Opened: true}
	}
	return false, StateChange{}
}

// RecordSuccess notes a successful call. It returns whether the breaker is
// now closed, plus the transition if this success caused one.
func (b *Breaker) RecordSuccess() (closed bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateClosed {
		return true, StateChange{}
	}

	b.successes++
	if b.successes >= b.successThreshold {
		b.state = StateClosed
		b.successes = 0
		return true, StateChange{Closed: true}
	}
	return false, StateChange{}
}

// Reset forces the breaker closed and clears both counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}
