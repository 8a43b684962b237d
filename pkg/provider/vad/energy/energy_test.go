package energy

import (
	"encoding/binary"
	"testing"

	"github.com/genievoice/genie/pkg/provider/vad"
)

// pcmFrame builds a constant-amplitude 16-bit PCM frame of n samples.
func pcmFrame(amplitude int16, n int) []byte {
	data := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(amplitude))
	}
	return data
}

func newSession(t *testing.T) vad.SessionHandle {
	t.Helper()
	s, err := New().NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 30})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func TestNewSessionValidatesConfig(t *testing.T) {
	t.Parallel()

	e := New()
	if _, err := e.NewSession(vad.Config{SampleRate: 0, FrameSizeMs: 30}); err == nil {
		t.Fatal("want error for zero sample rate")
	}
	if _, err := e.NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 0}); err == nil {
		t.Fatal("want error for zero frame size")
	}
}

func TestScoreSeparatesLoudFromQuiet(t *testing.T) {
	t.Parallel()

	s := newSession(t)

	quiet, err := s.Score(pcmFrame(50, 480))
	if err != nil {
		t.Fatalf("Score quiet: %v", err)
	}
	s.Reset()
	loud, err := s.Score(pcmFrame(8000, 480))
	if err != nil {
		t.Fatalf("Score loud: %v", err)
	}

	if quiet >= 0.5 {
		t.Fatalf("quiet frame scored %f, want < 0.5", quiet)
	}
	if loud <= 0.5 {
		t.Fatalf("loud frame scored %f, want > 0.5", loud)
	}
	if loud < 0 || loud > 1 || quiet < 0 || quiet > 1 {
		t.Fatalf("scores out of [0,1]: quiet=%f loud=%f", quiet, loud)
	}
}

func TestScoreSmoothsSpikes(t *testing.T) {
	t.Parallel()

	s := newSession(t)

	// Prime with silence, then a single loud frame. The EMA keeps the spike
	// below the score a sustained loud signal would reach.
	for i := 0; i < 5; i++ {
		if _, err := s.Score(pcmFrame(0, 480)); err != nil {
			t.Fatalf("Score: %v", err)
		}
	}
	spike, err := s.Score(pcmFrame(8000, 480))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	sustained := newSession(t)
	var level float64
	for i := 0; i < 6; i++ {
		if level, err = sustained.Score(pcmFrame(8000, 480)); err != nil {
			t.Fatalf("Score: %v", err)
		}
	}

	if spike >= level {
		t.Fatalf("spike score %f should stay below sustained score %f", spike, level)
	}
}

func TestScoreRejectsMalformedFrames(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	if _, err := s.Score(nil); err == nil {
		t.Fatal("want error for empty frame")
	}
	if _, err := s.Score([]byte{1, 2, 3}); err == nil {
		t.Fatal("want error for odd-length frame")
	}
}

func TestScoreAfterCloseFails(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Score(pcmFrame(100, 480)); err == nil {
		t.Fatal("want error after Close")
	}
}
