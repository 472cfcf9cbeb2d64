package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has
// an open circuit breaker.
var ErrAllFailed = errors.New("all endpoints failed")

// FallbackConfig configures the circuit breaker created for each entry of a
// [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the
// same client type. When the primary fails, or its breaker is open, the next
// healthy entry is tried in registration order.
//
// Entries must be registered before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry. Entries are tried in the order they are
// added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of entries.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// States returns the breaker state of every entry keyed by name.
func (fg *FallbackGroup[T]) States() map[string]State {
	out := make(map[string]State, len(fg.entries))
	for _, e := range fg.entries {
		out[e.name] = e.breaker.State()
	}
	return out
}

// Execute tries fn against each entry in order until one succeeds.
// Entries with an open breaker are skipped. Returns [ErrAllFailed] wrapped
// with the last error if every entry fails.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for functions that return a
// value. It is a package-level function because methods cannot declare type
// parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrCircuitOpen) && !entry.breaker.IsFailure(err) {
			// The next entry would fail the same way.
			return zero, err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping endpoint (circuit open)", "endpoint", entry.name)
		} else {
			slog.Warn("endpoint failed, trying next", "endpoint", entry.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
