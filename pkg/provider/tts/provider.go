// Package tts defines the Engine interface for text-to-speech backends.
//
// An engine synthesises a short response phrase and plays it to completion
// before returning. The pipeline speaks one phrase at a time (the wake
// acknowledgement, command results), so a blocking call is the natural shape;
// cancellation via ctx interrupts both synthesis and playback.
package tts

import "context"

// Engine is the abstraction over any speech synthesis backend.
//
// Implementations must be safe for concurrent use, though the pipeline
// serialises calls in practice.
type Engine interface {
	// Speak synthesises text and plays it to completion. It blocks until
	// playback finishes, fails, or ctx is cancelled.
	Speak(ctx context.Context, text string) error

	// Close releases backend resources. Calling Close more than once is
	// safe and returns nil.
	Close() error
}
