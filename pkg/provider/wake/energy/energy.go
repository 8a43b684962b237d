// Package energy implements a model-free wake matcher over completed speech
// segments. It accepts any segment whose voiced duration, RMS energy and
// zero-crossing rate fall inside the envelope of a short spoken phrase.
//
// This is a coarse heuristic meant as a fallback when no transcription-based
// matcher is available: it fires on any phrase-length utterance, trading
// precision for zero external dependencies. Confidence is scaled from the
// segment energy and capped well below 1 so downstream consumers can tell
// heuristic detections from model-backed ones.
package energy

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/genievoice/genie/pkg/audio"
	"github.com/genievoice/genie/pkg/provider/wake"
)

const (
	// Duration envelope for a short wake phrase.
	defaultMinDuration = 800 * time.Millisecond
	defaultMaxDuration = 3 * time.Second

	// Minimum RMS (normalised to [0, 1]) for the segment to count as speech
	// rather than ambient noise.
	defaultMinRMS = 0.01

	// Voiced speech at 16 kHz typically crosses zero between roughly 200 and
	// 3000 times per second. Rates outside that band are clicks or hiss.
	minZeroCrossRate = 200.0
	maxZeroCrossRate = 3000.0

	// Confidence ceiling for heuristic detections.
	maxConfidence = 0.7
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithDurationBounds overrides the accepted voiced-duration envelope.
func WithDurationBounds(minD, maxD time.Duration) Option {
	return func(m *Matcher) {
		m.minDuration = minD
		m.maxDuration = maxD
	}
}

// WithMinRMS overrides the minimum normalised RMS energy.
func WithMinRMS(rms float64) Option {
	return func(m *Matcher) {
		m.minRMS = rms
	}
}

// Matcher implements [wake.SegmentMatcher] using duration, energy and
// zero-crossing heuristics. It holds no mutable state and is safe for
// concurrent use.
type Matcher struct {
	phrase      string
	minDuration time.Duration
	maxDuration time.Duration
	minRMS      float64
}

// New returns a heuristic matcher that reports wakePhrase on detection.
func New(wakePhrase string, opts ...Option) (*Matcher, error) {
	if wakePhrase == "" {
		return nil, fmt.Errorf("energy: wake phrase must not be empty")
	}
	m := &Matcher{
		phrase:      wakePhrase,
		minDuration: defaultMinDuration,
		maxDuration: defaultMaxDuration,
		minRMS:      defaultMinRMS,
	}
	for _, o := range opts {
		o(m)
	}
	if m.minDuration <= 0 || m.maxDuration <= m.minDuration {
		return nil, fmt.Errorf("energy: invalid duration bounds [%s, %s]", m.minDuration, m.maxDuration)
	}
	return m, nil
}

// MatchSegment evaluates seg against the phrase envelope. It never blocks
// and only consults ctx for early cancellation.
func (m *Matcher) MatchSegment(ctx context.Context, seg *audio.SpeechSegment) (*wake.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("energy: %w", err)
	}
	if seg == nil || len(seg.Frames) == 0 {
		return nil, nil
	}

	voiced := seg.Voiced
	if voiced < m.minDuration || voiced > m.maxDuration {
		return nil, nil
	}

	pcm := seg.PCM()
	rms, zcr := analyse(pcm, seg.SampleRate())
	if rms < m.minRMS {
		return nil, nil
	}
	if zcr < minZeroCrossRate || zcr > maxZeroCrossRate {
		return nil, nil
	}

	confidence := min(maxConfidence, rms/(10*m.minRMS))
	return &wake.Event{
		Timestamp:  time.Now(),
		Confidence: confidence,
		Phrase:     m.phrase,
		Audio:      seg,
	}, nil
}

// analyse computes the normalised RMS energy and the zero-crossing rate
// (crossings per second) of 16-bit little-endian PCM.
func analyse(pcm []byte, sampleRate int) (rms, zcr float64) {
	n := len(pcm) / 2
	if n == 0 || sampleRate <= 0 {
		return 0, 0
	}
	var (
		sumSq     float64
		crossings int
		prev      int16
	)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(s) / 32768.0
		sumSq += v * v
		if i > 0 && (s >= 0) != (prev >= 0) {
			crossings++
		}
		prev = s
	}
	rms = math.Sqrt(sumSq / float64(n))
	seconds := float64(n) / float64(sampleRate)
	return rms, float64(crossings) / seconds
}

var _ wake.SegmentMatcher = (*Matcher)(nil)
