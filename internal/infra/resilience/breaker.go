// Package resilience guards calls to a remote dependency.
//
// This package contains:
//   - Breaker: consecutive-failure circuit breaker with a single half-open probe
//   - WithTimeout: hard per-attempt deadline
//   - Backoff / Retry: exponential schedule and a retry loop for transient failures
package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Allow when the call must fail fast.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	// StateClosed lets calls through and counts consecutive failures.
	StateClosed State = iota
	// StateOpen fails every call without contacting the dependency.
	StateOpen
	// StateHalfOpen lets exactly one probe call through.
	StateHalfOpen
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
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// OpenDuration is how long the circuit stays open before a probe is admitted.
	OpenDuration time.Duration
}

// DefaultBreakerConfig opens after 3 failures for 15 seconds.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 3,
	OpenDuration:     15 * time.Second,
}

// StateChange is emitted on every transition.
type StateChange struct {
	Breaker  string
	From     State
	To       State
	At       time.Time
	Failures int
	// OpenFor is the configured open duration, set when To is StateOpen.
	OpenFor time.Duration
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name                string        `json:"name"`
	State               string        `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	OpenedAt            time.Time     `json:"opened_at,omitzero"`
	FailureThreshold    int           `json:"failure_threshold"`
	OpenDuration        time.Duration `json:"open_duration"`
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// Breaker implements the circuit breaker pattern for one dependency.
// It is safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	name   string
	config BreakerConfig
	now    func() time.Time

	state               State
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool

	// pending holds transitions in emission order until they are dispatched
	pending []StateChange

	notifyMu    sync.Mutex
	subscribers []func(StateChange)
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, config BreakerConfig, opts ...Option) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig.FailureThreshold
	}
	if config.OpenDuration <= 0 {
		config.OpenDuration = DefaultBreakerConfig.OpenDuration
	}

	b := &Breaker{
		name:   name,
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Subscribe registers fn for state changes. Events are delivered synchronously,
// outside the state lock, in the order they happened. fn must not call Allow or
// Record on the same breaker.
func (b *Breaker) Subscribe(fn func(StateChange)) {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Allow reports whether a call may proceed. It returns ErrCircuitOpen when the
// call must fail fast. An open breaker whose open duration has elapsed moves to
// half-open here and admits the caller as its probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	err := b.allowLocked()
	b.mu.Unlock()

	b.dispatch()
	return err
}

func (b *Breaker) allowLocked() error {
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.OpenDuration {
			return ErrCircuitOpen
		}
		b.transitionTo(StateHalfOpen)
		b.probeInFlight = true
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			return ErrCircuitOpen
		}
		b.probeInFlight = true
		return nil
	default:
		return nil
	}
}

// Record reports the outcome of an admitted call.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
	b.mu.Unlock()

	b.dispatch()
}

// Release gives back an admission whose outcome says nothing about the
// dependency, such as a call abandoned because the caller went away. A half-open
// breaker can admit a new probe afterwards.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.probeInFlight = false
	}
}

// RecordSuccess is shorthand for Record(true).
func (b *Breaker) RecordSuccess() { b.Record(true) }

// RecordFailure is shorthand for Record(false).
func (b *Breaker) RecordFailure() { b.Record(false) }

func (b *Breaker) onSuccess() {
	b.consecutiveFailures = 0
	if b.state == StateHalfOpen {
		b.probeInFlight = false
		b.transitionTo(StateClosed)
	}
}

func (b *Breaker) onFailure() {
	b.consecutiveFailures++

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		b.probeInFlight = false
		b.trip()
	case StateOpen:
		// late result of a call admitted before the circuit opened
	}
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.transitionTo(StateOpen)
}

// transitionTo must be called with mu held.
func (b *Breaker) transitionTo(to State) {
	if b.state == to {
		return
	}
	change := StateChange{
		Breaker:  b.name,
		From:     b.state,
		To:       to,
		At:       b.now(),
		Failures: b.consecutiveFailures,
	}
	if to == StateOpen {
		change.OpenFor = b.config.OpenDuration
	}
	b.state = to
	b.pending = append(b.pending, change)
}

func (b *Breaker) dispatch() {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, change := range pending {
		for _, fn := range b.subscribers {
			fn(change)
		}
	}
}

// State returns the current state without evaluating the open timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the current breaker state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:                b.name,
		State:               b.state.String(),
		ConsecutiveFailures: b.consecutiveFailures,
		OpenedAt:            b.openedAt,
		FailureThreshold:    b.config.FailureThreshold,
		OpenDuration:        b.config.OpenDuration,
	}
}
