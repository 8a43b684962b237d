// Package audio defines the audio data types shared across the Genie
// pipeline: PCM frames, assembled speech segments, the capture source
// contract, and the bounded frame queue that decouples capture from
// processing.
//
// Frames are the atomic unit of audio transport — produced by a capture
// backend, scored by the voice classifier, accumulated by the segmenter,
// and handed to wake matching and transcription as segments.
package audio

import "time"

// AudioFrame is a single fixed-duration slice of mono PCM audio.
// A frame is immutable once produced; stages must not modify Data in place.
type AudioFrame struct {
	// Data is raw 16-bit little-endian PCM. Length is fixed by the capture
	// configuration (SampleRate × frame duration × 2 bytes).
	Data []byte

	// SampleRate in Hz (e.g., 16000).
	SampleRate int

	// Timestamp is the monotonic capture time of the first sample.
	Timestamp time.Time
}

// Duration returns the playback duration of the frame, derived from the
// sample count and sample rate. Returns 0 when SampleRate is unset.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	samples := len(f.Data) / 2
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// SpeechSegment is one contiguous voiced interval assembled from consecutive
// frames. It is constructed by the segmenter, consumed once by the stage that
// requested transcription, and then discarded.
type SpeechSegment struct {
	// Frames are the buffered frames covering the segment, in capture order.
	// They include the trailing silence frames up to the confirmation instant,
	// which transcription engines use for context.
	Frames []AudioFrame

	// Start is the capture time of the first voiced frame.
	Start time.Time

	// End is the silence-confirmation instant that closed the segment.
	End time.Time

	// Voiced is the duration of the voiced run itself, excluding the trailing
	// silence between the last voiced frame and End.
	Voiced time.Duration
}

// PCM concatenates the PCM data of all frames into a single buffer.
func (s *SpeechSegment) PCM() []byte {
	n := 0
	for _, f := range s.Frames {
		n += len(f.Data)
	}
	out := make([]byte, 0, n)
	for _, f := range s.Frames {
		out = append(out, f.Data...)
	}
	return out
}

// SampleRate returns the sample rate of the segment's frames, or 0 for an
// empty segment. All frames in a segment share one rate.
func (s *SpeechSegment) SampleRate() int {
	if len(s.Frames) == 0 {
		return 0
	}
	return s.Frames[0].SampleRate
}
