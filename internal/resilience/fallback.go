package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackChain] fails or
// has an open circuit breaker.
var ErrAllFailed = errors.New("all engines failed")

// FallbackConfig configures the per-entry circuit breaker created for each
// engine in a [FallbackChain].
type FallbackConfig struct {
	Breaker BreakerConfig
}

// chainEntry pairs an engine value with its dedicated circuit breaker.
type chainEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackChain wraps a primary and zero or more fallback instances of the
// same engine type. When the primary fails (or its circuit breaker is open),
// the next healthy fallback is tried in registration order.
//
// FallbackChain is safe for concurrent use once assembled; Add must not be
// called concurrently with Execute.
type FallbackChain[T any] struct {
	entries []chainEntry[T]
	cfg     FallbackConfig
}

// NewFallbackChain creates a [FallbackChain] with primary as the first
// entry. Additional fallbacks are registered via [FallbackChain.Add].
func NewFallbackChain[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackChain[T] {
	fc := &FallbackChain[T]{cfg: cfg}
	fc.Add(primaryName, primary)
	return fc
}

// Add appends a fallback engine. Fallbacks are tried in the order they are
// added, after the primary.
func (fc *FallbackChain[T]) Add(name string, engine T) {
	bcfg := fc.cfg.Breaker
	bcfg.Name = name
	fc.entries = append(fc.entries, chainEntry[T]{
		name:    name,
		value:   engine,
		breaker: NewCircuitBreaker(bcfg),
	})
}

// Names returns the engine names in try order.
func (fc *FallbackChain[T]) Names() []string {
	names := make([]string, len(fc.entries))
	for i, e := range fc.entries {
		names[i] = e.name
	}
	return names
}

// Execute tries fn against each entry in order until one succeeds.
// Circuit-breaker-open entries are skipped. Returns [ErrAllFailed] wrapped
// with the last error if every entry fails.
func (fc *FallbackChain[T]) Execute(fn func(T) error) error {
	var lastErr error
	for i := range fc.entries {
		entry := &fc.entries[i]
		err := entry.breaker.Execute(func() error {
			return fn(entry.value)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping engine (circuit open)", "engine", entry.name)
		} else {
			slog.Warn("engine failed, trying next", "engine", entry.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// ExecuteWithResult tries fn against each entry in the chain until one
// succeeds, returning both the result value and error. This is a
// package-level function because Go does not support method-level type
// parameters.
func ExecuteWithResult[T any, R any](fc *FallbackChain[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fc.entries {
		entry := &fc.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping engine (circuit open)", "engine", entry.name)
		} else {
			slog.Warn("engine failed, trying next", "engine", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
