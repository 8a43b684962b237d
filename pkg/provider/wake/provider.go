// Package wake defines the matcher interfaces for wake-phrase detection
// backends and the Event type they produce.
//
// Two matcher granularities exist. A FrameMatcher scores the live frame
// stream online (a keyword-spotting model such as Porcupine would sit behind
// this interface). A SegmentMatcher evaluates a completed speech segment as
// a whole — for example by transcribing it and comparing the text against
// the wake phrase. A deployment provides one or both; the wake gate consults
// whichever is configured.
//
// Matchers apply their own decision threshold: a nil Event with a nil error
// means "no detection", never a fault. Implementations must be safe for
// concurrent use.
package wake

import (
	"context"
	"time"

	"github.com/genievoice/genie/pkg/audio"
)

// Event is a single wake-phrase detection.
type Event struct {
	// Timestamp is when the detection was made.
	Timestamp time.Time

	// Confidence of the detection in [0, 1]. Backends without calibrated
	// scores report a fixed nominal value.
	Confidence float64

	// Phrase is the wake phrase that was matched.
	Phrase string

	// Audio is the segment that triggered the detection, when the matcher
	// operated on a segment. Nil for frame-level detections.
	Audio *audio.SpeechSegment
}

// FrameMatcher evaluates individual frames online.
type FrameMatcher interface {
	// MatchFrame scores one frame. Returns a non-nil Event on detection,
	// (nil, nil) when nothing was detected, and an error only on matcher
	// failure. MatchFrame is called on the pipeline loop and must not block.
	MatchFrame(frame audio.AudioFrame) (*Event, error)
}

// SegmentMatcher evaluates completed speech segments.
type SegmentMatcher interface {
	// MatchSegment evaluates one segment. Returns a non-nil Event on
	// detection, (nil, nil) when nothing was detected, and an error only on
	// matcher failure. MatchSegment may block (e.g., on transcription) and
	// must respect ctx.
	MatchSegment(ctx context.Context, seg *audio.SpeechSegment) (*Event, error)
}
