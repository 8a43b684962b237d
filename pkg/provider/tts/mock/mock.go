// Package mock provides a test double for the tts.Engine interface.
package mock

import (
	"context"
	"sync"

	"github.com/genievoice/genie/pkg/provider/tts"
)

// Engine is a mock implementation of tts.Engine. It records every spoken
// phrase and returns the configured errors.
type Engine struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every Speak call.
	Err error

	// Errs, when non-empty, is consumed one value per call before falling
	// back to Err. A nil element means that call succeeds.
	Errs []error
	next int

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SpeakDone, if non-nil, is signalled after each Speak call returns a
	// result. Useful for synchronising with a pipeline under test.
	SpeakDone chan struct{}

	// SpeakCalls records the text of every Speak call in order.
	SpeakCalls []string

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Speak records the call and returns the next scripted error.
func (e *Engine) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	e.SpeakCalls = append(e.SpeakCalls, text)
	var err error
	if e.next < len(e.Errs) {
		err = e.Errs[e.next]
		e.next++
	} else {
		err = e.Err
	}
	done := e.SpeakDone
	e.mu.Unlock()

	if done != nil {
		select {
		case done <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Spoken returns a copy of the recorded Speak texts.
func (e *Engine) Spoken() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.SpeakCalls))
	copy(out, e.SpeakCalls)
	return out
}

// Close records the call and returns CloseErr.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	return e.CloseErr
}

var _ tts.Engine = (*Engine)(nil)
