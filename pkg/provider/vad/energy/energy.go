// Package energy provides a pure-Go voice classifier based on RMS energy.
// It implements vad.Engine.
//
// The score is derived from the root-mean-square level of each frame,
// normalised to [-1, 1] PCM range and mapped through a saturating curve so
// that typical close-mic speech lands well above 0.5 while room noise stays
// below it. A short exponential moving average smooths single-frame spikes.
//
// An energy classifier cannot distinguish speech from other loud sounds; it
// is the dependency-free default, intended to be swapped for a model-backed
// engine in quality-sensitive deployments.
package energy

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/genievoice/genie/pkg/provider/vad"
)

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// speechRMS is the normalised RMS level mapped to a score of 0.5; levels
// around this mark correspond to quiet close-mic speech.
const speechRMS = 0.03

// smoothing is the EMA weight of the current frame.
const smoothing = 0.7

// Engine creates RMS-energy classifier sessions. It implements vad.Engine.
type Engine struct{}

// New returns an RMS-energy classifier engine.
func New() *Engine { return &Engine{} }

// NewSession creates a classifier session. The configuration is validated
// but otherwise unused — RMS scoring is independent of frame geometry.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate %d is invalid", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: frame size %dms is invalid", cfg.FrameSizeMs)
	}
	return &session{}, nil
}

// session scores frames by smoothed RMS level.
type session struct {
	mu     sync.Mutex
	avg    float64
	primed bool
	closed bool
}

// Score returns the smoothed, saturated RMS level of the frame in [0, 1].
func (s *session) Score(frame []byte) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("energy: session is closed")
	}
	if len(frame) == 0 || len(frame)%2 != 0 {
		return 0, fmt.Errorf("energy: frame length %d is not valid 16-bit PCM", len(frame))
	}

	level := rms(frame)
	if !s.primed {
		s.avg = level
		s.primed = true
	} else {
		s.avg = smoothing*level + (1-smoothing)*s.avg
	}

	// Saturating map: speechRMS → 0.5, asymptotically approaching 1.
	return s.avg / (s.avg + speechRMS), nil
}

// Reset clears the smoothing state.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avg = 0
	s.primed = false
}

// Close marks the session closed. Subsequent Score calls return an error.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// rms computes the root-mean-square level of 16-bit little-endian PCM,
// normalised to [0, 1].
func rms(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(frame[i*2:]))) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
