// Package command defines the Executor interface for command backends.
//
// An executor receives the transcribed text of a command session and returns
// the spoken reply. Backends range from a local pattern table to a hosted
// LLM; the pipeline does not care which, it speaks whatever comes back.
package command

import (
	"context"
	"errors"
)

// ErrUnrecognized is returned when the backend understood the request but
// has no handler for it. The pipeline treats this as a normal outcome, not
// a capability fault.
var ErrUnrecognized = errors.New("command: unrecognized")

// Executor is the abstraction over any command backend.
//
// Implementations must be safe for concurrent use.
type Executor interface {
	// Execute runs the transcribed command and returns the reply to speak.
	// Returns ErrUnrecognized (possibly wrapped) when no handler matches;
	// any other error is a backend fault.
	Execute(ctx context.Context, text string) (string, error)
}
