package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// attempting it
var ErrCircuitOpen = errors.New("circuit breaker open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	}
	return "closed"
}

// CircuitBreaker fails fast after a run of consecutive errors. It opens after
// exactly threshold consecutive failures, rejects every call until
// resetTimeout has elapsed, then admits a single probe: a successful probe
// closes the breaker, a failed one re-opens it for another full timeout.
type CircuitBreaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker with the given policy
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Execute runs fn under the breaker's admission policy. The lock is not held
// while fn runs.
func (b *CircuitBreaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()
	b.record(err == nil)
	return err
}

// State returns the breaker's current state name
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked().String()
}

func (b *CircuitBreaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case stateOpen:
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	case stateHalfOpen:
		if b.probing {
			return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
		}
		b.state = stateHalfOpen
		b.probing = true
	}
	return nil
}

func (b *CircuitBreaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.state = stateClosed
		b.failures = 0
		b.probing = false
		return
	}

	if b.state == stateHalfOpen {
		// Failed probe re-opens for another full timeout
		b.state = stateOpen
		b.openedAt = b.now()
		b.probing = false
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = stateOpen
		b.openedAt = b.now()
		b.failures = 0
	}
}

// stateLocked resolves the effective state, promoting open to half-open once
// the reset timeout has elapsed
func (b *CircuitBreaker) stateLocked() breakerState {
	if b.state == stateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		b.state = stateHalfOpen
		b.probing = false
	}
	return b.state
}
