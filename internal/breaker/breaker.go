// Package breaker implements the circuit breaker protecting the
// delegation chain from cascading subtask failures.
package breaker

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Default settings. Exposed so callers can reference them in config.
const (
	DefaultFailureThreshold = 3
	DefaultResetTimeout     = 60 * time.Second
)

// Settings configures a Breaker.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from closed to open. Zero means DefaultFailureThreshold.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before allowing a
	// probe attempt. Zero means DefaultResetTimeout.
	ResetTimeout time.Duration
	// OnStateChange is called (outside the lock) on every transition.
	OnStateChange func(from, to State)
}

// Breaker tracks consecutive delegation failures and rejects new
// attempts while open. One Breaker is shared per process via explicit
// injection; all methods are safe for concurrent use.
//
// Unlike the transport-level breaker in internal/llm, outcomes here are
// recorded by the caller after the fact (a waited subtask may take
// minutes to resolve), so the Allow/Execute contract of sony/gobreaker
// does not fit.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time

	threshold    int
	resetTimeout time.Duration
	onChange     func(from, to State)
	now          func() time.Time // injectable for tests
}

// New creates a Breaker in the closed state.
func New(s Settings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = DefaultResetTimeout
	}
	return &Breaker{
		state:        StateClosed,
		threshold:    s.FailureThreshold,
		resetTimeout: s.ResetTimeout,
		onChange:     s.OnStateChange,
		now:          time.Now,
	}
}

// CanRun reports whether a new delegation attempt may proceed. While
// open, the first call after the reset timeout transitions the breaker
// to half-open and is allowed through as a probe.
func (b *Breaker) CanRun() bool {
	b.mu.Lock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		b.mu.Unlock()
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.resetTimeout {
			b.setState(StateHalfOpen)
			b.mu.Unlock()
			return true
		}
		b.mu.Unlock()
		return false
	default:
		b.mu.Unlock()
		return false
	}
}

// RecordSuccess resets the failure counter and closes the breaker,
// regardless of prior state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.setState(StateClosed)
	b.mu.Unlock()
}

// RecordFailure counts a failed delegation. A failed half-open probe
// reopens the breaker immediately; otherwise the breaker opens once the
// consecutive-failure threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	b.failures++
	b.lastFailure = b.now()

	if b.state == StateHalfOpen {
		b.setState(StateOpen)
	} else if b.failures >= b.threshold {
		b.setState(StateOpen)
	}
	b.mu.Unlock()
}

// Reset forces the breaker closed and clears all failure history.
// Administrative override.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.failures = 0
	b.lastFailure = time.Time{}
	b.setState(StateClosed)
	b.mu.Unlock()
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// setState transitions state and fires the callback. Caller holds the
// lock; the callback runs after the transition but still under the
// lock, so callbacks must not call back into the breaker.
func (b *Breaker) setState(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
