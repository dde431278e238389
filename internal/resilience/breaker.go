// Package resilience guards calls to dependencies that can go away,
// like a webhook endpoint. A tripped breaker fails fast instead of
// hammering a dead target, and probes it again after a cool-down.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/benchtop-io/benchd/internal/metrics"
)

// State is the breaker's position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrOpen reports a call skipped because the breaker is open.
var ErrOpen = errors.New("circuit open")

const (
	defaultThreshold = 3
	defaultCooldown  = 30 * time.Second
)

type clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Breaker trips after a run of consecutive failures. Once the
// cool-down passes, a single probe call decides whether it closes
// again or reopens.
type Breaker struct {
	mu        sync.Mutex
	name      string
	state     State
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	clock     clock
}

// Option adjusts a Breaker.
type Option func(*Breaker)

// WithClock substitutes the time source, for tests.
func WithClock(c clock) Option {
	return func(b *Breaker) { b.clock = c }
}

// NewBreaker builds a closed breaker. The name keys its metrics.
// Non-positive threshold or cooldown fall back to the defaults.
func NewBreaker(name string, threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	b := &Breaker{
		name:      name,
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		clock:     systemClock{},
	}
	for _, opt := range opts {
		opt(b)
	}
	metrics.SetBreakerState(b.name, string(b.state))
	return b
}

// Execute runs fn under the breaker. When the breaker is open and
// still cooling down, fn is not called and ErrOpen returns.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// State returns the breaker's current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.clock.Now().Sub(b.openedAt) > b.cooldown {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		// Closed always passes. Half-open lets the probe through.
		return true
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == StateHalfOpen {
		b.trip("probe_failed")
		return
	}
	if b.state == StateClosed && b.failures >= b.threshold {
		b.trip("threshold")
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// trip opens the breaker. Caller holds the lock.
func (b *Breaker) trip(reason string) {
	metrics.IncBreakerTrip(b.name, reason)
	b.transition(StateOpen)
}

// transition moves the state machine. Caller holds the lock.
func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	b.state = next
	if next == StateOpen {
		b.openedAt = b.clock.Now()
	}
	metrics.SetBreakerState(b.name, string(next))
}
