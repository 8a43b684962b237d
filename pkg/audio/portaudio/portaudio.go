// Package portaudio provides a microphone capture backend built on the
// PortAudio bindings. It implements audio.Source.
//
// The backend initialises the PortAudio runtime on first Open and opens the
// default input device as a mono 16-bit stream. A reader goroutine copies
// each hardware buffer into an immutable frame and pushes it onto a bounded
// drop-oldest queue, so a stalled consumer never blocks the capture device.
package portaudio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/genievoice/genie/pkg/audio"
)

const (
	defaultSampleRate  = 16000
	defaultFrameSizeMs = 30
	defaultQueueDepth  = 64
)

// initOnce guards the process-wide PortAudio runtime initialisation.
var (
	initOnce sync.Once
	initErr  error
)

// Source opens microphone capture streams via PortAudio.
type Source struct{}

// New returns a PortAudio-backed audio.Source.
func New() *Source { return &Source{} }

var _ audio.Source = (*Source)(nil)

// Open starts capturing from the default input device. Zero-valued config
// fields fall back to 16 kHz, 30 ms frames, and a 64-frame queue.
func (s *Source) Open(cfg audio.CaptureConfig) (audio.Capture, error) {
	initOnce.Do(func() {
		initErr = pa.Initialize()
	})
	if initErr != nil {
		return nil, fmt.Errorf("portaudio: initialise: %w", initErr)
	}

	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.FrameSizeMs <= 0 {
		cfg.FrameSizeMs = defaultFrameSizeMs
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}

	frameSamples := cfg.SampleRate * cfg.FrameSizeMs / 1000
	if frameSamples <= 0 {
		return nil, fmt.Errorf("portaudio: invalid frame size: %d samples", frameSamples)
	}

	buf := make([]int16, frameSamples)
	stream, err := pa.OpenDefaultStream(1, 0, float64(cfg.SampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}

	c := &capture{
		stream:     stream,
		buf:        buf,
		sampleRate: cfg.SampleRate,
		queue:      audio.NewFrameQueue(cfg.QueueDepth),
		done:       make(chan struct{}),
	}
	go c.loop()
	return c, nil
}

// capture is an open microphone stream. It implements audio.Capture.
type capture struct {
	stream     *pa.Stream
	buf        []int16
	sampleRate int
	queue      *audio.FrameQueue
	done       chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

// loop reads hardware buffers until the stream is closed, converting each
// into a frame on the queue.
func (c *capture) loop() {
	defer c.queue.Close()
	for {
		select {
		case <-c.done:
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			if !errors.Is(err, pa.InputOverflowed) {
				slog.Warn("portaudio: stream read failed", "error", err)
				return
			}
			// Overflow drops hardware-side samples; keep going.
			continue
		}

		data := make([]byte, len(c.buf)*2)
		for i, s := range c.buf {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
		}
		c.queue.Push(audio.AudioFrame{
			Data:       data,
			SampleRate: c.sampleRate,
			Timestamp:  time.Now(),
		})
	}
}

// Frames returns the captured frame stream.
func (c *capture) Frames() <-chan audio.AudioFrame { return c.queue.Frames() }

// Dropped returns the number of frames evicted under backpressure.
func (c *capture) Dropped() uint64 { return c.queue.Dropped() }

// Close stops the stream and releases the device.
func (c *capture) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.stream.Stop(); err != nil {
			c.closeErr = fmt.Errorf("portaudio: stop stream: %w", err)
		}
		if err := c.stream.Close(); err != nil && c.closeErr == nil {
			c.closeErr = fmt.Errorf("portaudio: close stream: %w", err)
		}
	})
	return c.closeErr
}

var _ audio.Capture = (*capture)(nil)
