package circuit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultThreshold = 5
	DefaultCooldown  = 10 * time.Second
)

// Breaker opens after a run of consecutive failed host calls and stays open for
// a cooldown. After the cooldown one probe is admitted: success closes the
// breaker, failure reopens it.
type Breaker struct {
	mu sync.Mutex

	state State

	threshold int
	cooldown  time.Duration

	failures   int
	openedAt   time.Time
	probeInUse bool

	now func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the breaker clock.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBreaker creates a closed breaker. Non-positive arguments fall back to
// DefaultThreshold and DefaultCooldown.
func NewBreaker(threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	b := &Breaker{
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshLocked()
}

// Failures returns the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) Allow(_ context.Context) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.refreshLocked() {
	case StateOpen:
		return Decision{
			State:      StateOpen,
			Reason:     ReasonCircuitOpen,
			RetryAfter: b.cooldown - b.now().Sub(b.openedAt),
		}
	case StateHalfOpen:
		if b.probeInUse {
			return Decision{State: StateHalfOpen, Reason: ReasonCircuitHalfOpenProbeLimit}
		}
		b.probeInUse = true
		return Decision{Allowed: true, State: StateHalfOpen}
	default:
		return Decision{Allowed: true, State: StateClosed}
	}
}

func (b *Breaker) RecordSuccess(_ context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.refreshLocked() {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.moveLocked(StateClosed)
	}
}

func (b *Breaker) RecordFailure(_ context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.refreshLocked() {
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.moveLocked(StateOpen)
		}
	case StateHalfOpen:
		b.moveLocked(StateOpen)
	}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.moveLocked(StateClosed)
	b.mu.Unlock()
}

func (b *Breaker) refreshLocked() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.moveLocked(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) moveLocked(next State) {
	b.state = next
	b.probeInUse = false
	switch next {
	case StateClosed:
		b.failures = 0
	case StateOpen:
		b.openedAt = b.now()
		b.failures = 0
	}
}
