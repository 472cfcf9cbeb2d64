// Package resilience provides circuit breaker and endpoint failover
// primitives for the external services SmarTerp depends on.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// stops hammering a service that keeps failing. [FallbackGroup] puts several
// instances of the same client type behind per-entry breakers, so a failing
// primary is bypassed in favour of the next healthy entry. [OracleFallback]
// applies this to the linked-data oracle.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive failures.
	// Calls are rejected immediately with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen is the state entered after the reset timeout. A limited
	// number of calls are allowed through; if they succeed the breaker closes,
	// otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log messages, usually the endpoint host.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long an open breaker rejects calls before it admits
	// trials. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is both the number of trials admitted while half-open and
	// the number of successful ones needed to close again. Default: 3.
	HalfOpenMax int

	// IsFailure classifies the errors of the guarded call. Errors it rejects
	// are returned to the caller without being counted, and a trial that
	// ends that way gives its slot back. Default: every error counts.
	IsFailure func(error) bool
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 3
	}
	if c.IsFailure == nil {
		c.IsFailure = func(error) bool { return true }
	}
	return c
}

// CircuitBreaker guards one endpoint. It opens after MaxFailures
// consecutive failures, rejects calls for ResetTimeout, then lets up to
// HalfOpenMax trials through. Any failed trial re-opens it.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive, while closed
	openedAt time.Time // last transition to open
	trials   int       // admitted since entering half-open
	trialsOK int
}

// NewCircuitBreaker returns a closed breaker. Zero config fields take their
// documented defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults()}
}

// Execute runs fn unless the breaker rejects the call with [ErrCircuitOpen].
// The error of fn is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(trial, err)
	return err
}

// IsFailure reports whether err would count against the breaker.
func (cb *CircuitBreaker) IsFailure(err error) bool {
	return err != nil && cb.cfg.IsFailure(err)
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the
// next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cooled() {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if !cb.cooled() {
			return false, ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.state != StateHalfOpen {
		return false, nil
	}
	if cb.trials >= cb.cfg.HalfOpenMax {
		return false, ErrCircuitOpen
	}
	cb.trials++
	return true, nil
}

func (cb *CircuitBreaker) settle(trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// A trial may finish after another trial already re-opened the breaker.
	trialing := trial && cb.state == StateHalfOpen

	switch {
	case err == nil && trialing:
		cb.trialsOK++
		if cb.trialsOK >= cb.cfg.HalfOpenMax {
			cb.transition(StateClosed)
		}
	case err == nil:
		if cb.state == StateClosed {
			cb.failures = 0
		}
	case !cb.cfg.IsFailure(err):
		if trialing {
			cb.trials--
		}
	case trialing:
		cb.transition(StateOpen)
	case cb.state == StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			cb.transition(StateOpen)
		}
	default:
		cb.openedAt = time.Now()
	}
}

// cooled reports whether an open breaker may admit trials. Must be called
// with cb.mu held.
func (cb *CircuitBreaker) cooled() bool {
	return time.Since(cb.openedAt) >= cb.cfg.ResetTimeout
}

// transition moves to state to and clears the counters of the old state.
// Must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	failures := cb.failures
	cb.state = to
	cb.failures, cb.trials, cb.trialsOK = 0, 0, 0

	switch to {
	case StateOpen:
		cb.openedAt = time.Now()
		slog.Warn("circuit breaker opened", "endpoint", cb.cfg.Name, "from", from, "consecutive_failures", failures)
	case StateHalfOpen:
		slog.Info("circuit breaker half-open", "endpoint", cb.cfg.Name)
	case StateClosed:
		slog.Info("circuit breaker closed", "endpoint", cb.cfg.Name)
	}
}
