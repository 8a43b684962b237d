// Package segmenter turns a continuous audio frame stream into discrete
// speech segments using a hysteresis state machine over per-frame voice
// confidence scores.
//
// Each frame is scored by an injected VAD session; the segmenter tracks a
// SILENCE/SPEECH phase and emits a completed segment once a sufficiently
// long voiced run is confirmed by a sufficiently long silence run. Time is
// taken from frame timestamps, never from the wall clock, so the machine is
// fully deterministic under test.
//
// All state is owned by the single goroutine calling Process (or by Run's
// internal goroutine); the segmenter itself takes no locks.
package segmenter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/genievoice/genie/pkg/audio"
	"github.com/genievoice/genie/pkg/provider/vad"
)

const (
	defaultMinSpeech    = 250 * time.Millisecond
	defaultMinSilence   = 500 * time.Millisecond
	defaultThreshold    = 0.5
	defaultBufferFrames = 100
)

// Config holds the segmentation parameters.
type Config struct {
	// Threshold is the confidence above which a frame counts as speech.
	// Zero means 0.5.
	Threshold float64

	// MinSpeech is the minimum voiced-run duration for a segment to be
	// emitted rather than discarded. Zero means 250ms.
	MinSpeech time.Duration

	// MinSilence is the silence duration that confirms the end of a voiced
	// run. Zero means 500ms.
	MinSilence time.Duration

	// BufferFrames bounds the frame ring buffer, and with it the maximum
	// representable segment length. Oldest frames are evicted first.
	// Zero means 100.
	BufferFrames int
}

// Validate reports all problems with the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Threshold < 0 || c.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("threshold %v outside [0, 1)", c.Threshold))
	}
	if c.MinSpeech < 0 {
		errs = append(errs, errors.New("min speech duration must not be negative"))
	}
	if c.MinSilence < 0 {
		errs = append(errs, errors.New("min silence duration must not be negative"))
	}
	if c.BufferFrames < 0 {
		errs = append(errs, errors.New("buffer frames must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Threshold == 0 {
		out.Threshold = defaultThreshold
	}
	if out.MinSpeech == 0 {
		out.MinSpeech = defaultMinSpeech
	}
	if out.MinSilence == 0 {
		out.MinSilence = defaultMinSilence
	}
	if out.BufferFrames == 0 {
		out.BufferFrames = defaultBufferFrames
	}
	return out
}

// FrameEvent is the per-frame passthrough emitted for every processed frame,
// regardless of segment completion.
type FrameEvent struct {
	Frame audio.AudioFrame

	// Speech reports whether the frame scored above the threshold.
	Speech bool

	// Confidence is the classifier score in [0, 1]. Zero when the
	// classifier failed on this frame.
	Confidence float64
}

type phase int

const (
	phaseSilence phase = iota
	phaseSpeech
)

// Segmenter is the voice-activity segmentation state machine. Not safe for
// concurrent use: Process must be called from a single goroutine.
type Segmenter struct {
	cfg     Config
	session vad.SessionHandle
	log     *slog.Logger

	phase        phase
	speechStart  time.Time
	silenceStart time.Time
	buf          []audio.AudioFrame
}

// New creates a Segmenter scoring frames with session.
func New(cfg Config, session vad.SessionHandle, log *slog.Logger) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("segmenter: invalid config: %w", err)
	}
	if session == nil {
		return nil, errors.New("segmenter: vad session must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Segmenter{
		cfg:     cfg.withDefaults(),
		session: session,
		log:     log,
	}, nil
}

// Process scores one frame and advances the state machine. It always returns
// a passthrough event; the segment pointer is non-nil only on the frame that
// confirms a completed segment. Time is read from frame.Timestamp.
func (s *Segmenter) Process(frame audio.AudioFrame) (FrameEvent, *audio.SpeechSegment) {
	confidence, err := s.session.Score(frame.Data)
	if err != nil {
		s.log.Warn("segmenter: classifier failed on frame, treating as silence",
			"timestamp", frame.Timestamp, "error", err)
		confidence = 0
	}
	isSpeech := confidence > s.cfg.Threshold

	s.append(frame)
	now := frame.Timestamp

	var seg *audio.SpeechSegment
	switch s.phase {
	case phaseSilence:
		if isSpeech {
			s.phase = phaseSpeech
			s.speechStart = now
			s.silenceStart = time.Time{}
		}

	case phaseSpeech:
		if isSpeech {
			s.silenceStart = time.Time{}
			break
		}
		if s.silenceStart.IsZero() {
			s.silenceStart = now
		}
		if now.Sub(s.silenceStart) < s.cfg.MinSilence {
			break
		}
		if s.silenceStart.Sub(s.speechStart) >= s.cfg.MinSpeech {
			seg = s.buildSegment(now)
		}
		s.phase = phaseSilence
		s.speechStart = time.Time{}
		s.silenceStart = time.Time{}
	}

	return FrameEvent{Frame: frame, Speech: isSpeech, Confidence: confidence}, seg
}

// Reset returns the machine to SILENCE and clears the buffer and the
// classifier's internal state.
func (s *Segmenter) Reset() {
	s.phase = phaseSilence
	s.speechStart = time.Time{}
	s.silenceStart = time.Time{}
	s.buf = s.buf[:0]
	s.session.Reset()
}

// append adds a frame to the ring buffer, evicting the oldest on overflow.
func (s *Segmenter) append(frame audio.AudioFrame) {
	if len(s.buf) >= s.cfg.BufferFrames {
		n := copy(s.buf, s.buf[1:])
		s.buf = s.buf[:n]
	}
	s.buf = append(s.buf, frame)
}

// buildSegment collects the buffered frames spanning [speechStart, now] into
// a SpeechSegment. The segment includes the trailing silence that confirmed
// it; Voiced carries the duration of the voiced run alone.
func (s *Segmenter) buildSegment(now time.Time) *audio.SpeechSegment {
	var frames []audio.AudioFrame
	for _, f := range s.buf {
		if !f.Timestamp.Before(s.speechStart) {
			frames = append(frames, f)
		}
	}
	if len(frames) == 0 {
		return nil
	}
	return &audio.SpeechSegment{
		Frames: frames,
		Start:  s.speechStart,
		End:    now,
		Voiced: s.silenceStart.Sub(s.speechStart),
	}
}

// Run drives the segmenter from an input channel and splits its output into
// two streams: a per-frame event stream and a completed-segment stream.
// Both are closed when in closes or ctx is cancelled. Sends block, so a slow
// consumer backpressures frame intake rather than reordering or dropping
// events here.
func (s *Segmenter) Run(ctx context.Context, in <-chan audio.AudioFrame) (<-chan FrameEvent, <-chan *audio.SpeechSegment) {
	events := make(chan FrameEvent)
	segments := make(chan *audio.SpeechSegment)

	go func() {
		defer close(events)
		defer close(segments)
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-in:
				if !ok {
					return
				}
				ev, seg := s.Process(frame)
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
				if seg == nil {
					continue
				}
				select {
				case segments <- seg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, segments
}
