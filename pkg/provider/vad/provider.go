// Package vad defines the Engine interface for frame-level voice
// classification backends.
//
// A VAD engine wraps a speech-probability scorer (an energy detector, a
// Silero-style model server, or a custom classifier) and surfaces it as a
// stateful per-stream session. Each session keeps its own smoothing state so
// that independent audio streams can be scored concurrently.
//
// Scoring is synchronous by design: Score returns immediately with a
// confidence value, making it suitable for the per-frame segmentation loop.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines unless the
// implementation documents otherwise.
package vad

// Config holds the parameters for a classifier session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to Score. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Most
	// classifiers operate on fixed frame sizes (e.g., 10, 20, or 30 ms).
	FrameSizeMs int
}

// SessionHandle is an active classifier session for a single audio stream.
// It is an interface so that tests can supply scripted scorers.
type SessionHandle interface {
	// Score returns the speech confidence of a single frame in [0, 1].
	// The frame must be raw 16-bit little-endian mono PCM at the configured
	// sample rate and frame size. Returns an error on a malformed frame or an
	// internal classifier failure; callers treat a failed frame as silence.
	//
	// Score is called synchronously in the segmentation loop; it must not
	// block.
	Score(frame []byte) (float64, error)

	// Reset clears accumulated scoring state without closing the session.
	// Use when the stream is interrupted or restarted.
	Reset()

	// Close releases session resources. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Engine is the factory for classifier sessions. Implementations must be
// safe for concurrent use.
type Engine interface {
	// NewSession creates a classifier session with the given configuration.
	// Returns an error if the configuration is invalid or resources cannot
	// be allocated.
	NewSession(cfg Config) (SessionHandle, error)
}
