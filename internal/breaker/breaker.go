// Package breaker guards calls to a dependency that may be down (SQLite on a
// full disk, a locked database file). After MaxFailures consecutive failures
// the breaker opens and rejects calls for ResetTimeout, then lets a single
// probe through in half-open state.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
)

// State represents the breaker state.
type State int

const (
	StateClosed   State = 0 // calls pass through
	StateOpen     State = 1 // calls rejected immediately
	StateHalfOpen State = 2 // one probe allowed through
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when the breaker rejects a call.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probing     bool

	// OnStateChange is called on transitions while the breaker lock is held.
	OnStateChange func(name string, from, to State)
}

// New creates a breaker. maxFailures below 1 is treated as 1.
func New(name string, maxFailures int, resetTimeout time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn through the breaker. Returns ErrOpen without calling fn when
// the breaker is open, or half-open with a probe already in flight.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.resetTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrOpen
		}
		b.probing = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err != nil {
		b.failures++
		b.lastFailure = b.now()
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.transition(StateOpen)
		}
		return err
	}

	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	b.failures = 0
	return nil
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	logger.WithComponent("breaker").WithFields(logger.Fields{
		"breaker": b.name,
		"from":    from.String(),
		"to":      to.String(),
	}).Warn("state change")
	if b.OnStateChange != nil {
		b.OnStateChange(b.name, from, to)
	}
}
