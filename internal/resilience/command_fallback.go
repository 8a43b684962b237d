package resilience

import (
	"context"
	"errors"

	"github.com/genievoice/genie/pkg/provider/command"
)

// CommandFallback implements [command.Executor] with automatic failover
// across multiple backends — typically a hosted LLM first and the local
// pattern table behind it so basic commands keep working offline.
//
// An ErrUnrecognized result counts as a miss, not a fault: it falls through
// to the next backend without tripping the breaker.
type CommandFallback struct {
	chain *FallbackChain[command.Executor]
}

// Compile-time interface assertion.
var _ command.Executor = (*CommandFallback)(nil)

// NewCommandFallback creates a [CommandFallback] with primary as the
// preferred backend.
func NewCommandFallback(primary command.Executor, primaryName string, cfg FallbackConfig) *CommandFallback {
	return &CommandFallback{
		chain: NewFallbackChain(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional command executor as a fallback.
func (f *CommandFallback) AddFallback(name string, executor command.Executor) {
	f.chain.Add(name, executor)
}

// Names returns the executor names in try order.
func (f *CommandFallback) Names() []string { return f.chain.Names() }

// Execute runs text via the first healthy backend that recognises it.
func (f *CommandFallback) Execute(ctx context.Context, text string) (string, error) {
	var lastErr error
	for i := range f.chain.entries {
		entry := &f.chain.entries[i]
		var reply string
		err := entry.breaker.Execute(func() error {
			var innerErr error
			reply, innerErr = entry.value.Execute(ctx, text)
			if errors.Is(innerErr, command.ErrUnrecognized) {
				// A miss is a healthy response; don't punish the backend.
				return nil
			}
			return innerErr
		})
		if err == nil {
			if reply != "" {
				return reply, nil
			}
			lastErr = command.ErrUnrecognized
			continue
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = command.ErrUnrecognized
	}
	if errors.Is(lastErr, command.ErrUnrecognized) {
		return "", lastErr
	}
	return "", errors.Join(ErrAllFailed, lastErr)
}
