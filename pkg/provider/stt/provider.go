// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A transcriber converts a completed speech segment into text in one batch
// call. Streaming partials are deliberately out of scope: the pipeline hands
// over fully segmented utterances, so batch engines (whisper.cpp, an HTTP
// inference server) fit naturally and streaming engines simply flush at
// segment end.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"

	"github.com/genievoice/genie/pkg/audio"
)

// Transcript is the result of transcribing one speech segment.
type Transcript struct {
	// Text is the transcribed speech content, whitespace-trimmed.
	// Empty when the segment contained no recognisable speech.
	Text string

	// Confidence is the overall recognition confidence in [0, 1]. Zero when
	// the backend does not report confidence.
	Confidence float64

	// Duration is the audio duration that was transcribed.
	Duration time.Duration
}

// Transcriber is the abstraction over any speech-to-text backend.
type Transcriber interface {
	// Transcribe converts the segment's audio to text. It blocks until the
	// backend produces a result or ctx is cancelled. Implementations must
	// not retain the segment after returning.
	Transcribe(ctx context.Context, seg *audio.SpeechSegment) (Transcript, error)

	// Close releases backend resources (loaded models, connections).
	// Calling Close more than once is safe and returns nil.
	Close() error
}
