// Package mock provides test doubles for the audio package interfaces.
//
// Use Source to verify that capture streams are opened with the expected
// CaptureConfig, and Capture to script a fixed sequence of frames through
// the pipeline.
package mock

import (
	"sync"

	"github.com/genievoice/genie/pkg/audio"
)

// OpenCall records a single invocation of Source.Open.
type OpenCall struct {
	// Cfg is the CaptureConfig passed to Open.
	Cfg audio.CaptureConfig
}

// Source is a mock implementation of audio.Source.
type Source struct {
	mu sync.Mutex

	// Capture is returned by Open. If nil, Open returns a new empty Capture.
	Capture audio.Capture

	// OpenErr, if non-nil, is returned as the error from Open.
	OpenErr error

	// OpenCalls records every call to Open in order.
	OpenCalls []OpenCall
}

// Open records the call and returns Capture, OpenErr.
func (s *Source) Open(cfg audio.CaptureConfig) (audio.Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls = append(s.OpenCalls, OpenCall{Cfg: cfg})
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	if s.Capture != nil {
		return s.Capture, nil
	}
	return NewCapture(nil), nil
}

var _ audio.Source = (*Source)(nil)

// Capture is a scripted audio.Capture that replays a fixed frame sequence.
type Capture struct {
	ch        chan audio.AudioFrame
	closeOnce sync.Once

	mu             sync.Mutex
	closeCallCount int
}

// NewCapture returns a Capture whose Frames channel yields the given frames
// in order and then closes.
func NewCapture(frames []audio.AudioFrame) *Capture {
	c := &Capture{ch: make(chan audio.AudioFrame, len(frames)+1)}
	for _, f := range frames {
		c.ch <- f
	}
	c.closeOnce.Do(func() { close(c.ch) })
	return c
}

// NewOpenCapture returns a Capture whose Frames channel stays open until
// Close. Use Feed to push frames from the test.
func NewOpenCapture(buffer int) *Capture {
	return &Capture{ch: make(chan audio.AudioFrame, buffer)}
}

// Feed pushes a frame into the stream. Only valid on a Capture created with
// NewOpenCapture, before Close.
func (c *Capture) Feed(f audio.AudioFrame) {
	c.ch <- f
}

// Frames returns the scripted frame stream.
func (c *Capture) Frames() <-chan audio.AudioFrame { return c.ch }

// Dropped always returns 0.
func (c *Capture) Dropped() uint64 { return 0 }

// CloseCallCount reports how many times Close was called.
func (c *Capture) CloseCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCallCount
}

// Close closes the frame channel (once) and records the call.
func (c *Capture) Close() error {
	c.mu.Lock()
	c.closeCallCount++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.ch) })
	return nil
}

var _ audio.Capture = (*Capture)(nil)
