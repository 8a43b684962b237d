package audio

// CaptureConfig holds the parameters for opening a capture stream.
type CaptureConfig struct {
	// SampleRate is the capture sample rate in Hz. 16000 is recommended for
	// speech pipelines.
	SampleRate int

	// FrameSizeMs is the duration of each delivered frame in milliseconds.
	// Typical values are 20–30 ms.
	FrameSizeMs int

	// QueueDepth bounds the number of frames buffered between the capture
	// callback and the consumer. Under sustained backpressure the oldest
	// frame is dropped. Zero selects a backend default.
	QueueDepth int
}

// Capture is an open audio capture stream delivering mono PCM frames in
// capture order. Implementations run their own producer (a backend callback
// or reader goroutine) feeding a bounded drop-oldest queue.
type Capture interface {
	// Frames returns the stream of captured frames. The channel is closed
	// when the stream ends or Close is called.
	Frames() <-chan AudioFrame

	// Dropped returns the number of frames evicted under backpressure so far.
	Dropped() uint64

	// Close stops capture and releases backend resources. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Source opens capture streams. It is the top-level interface implemented by
// each capture backend (microphone, file replay, test double).
type Source interface {
	// Open starts a capture stream with the given configuration. The stream
	// delivers frames immediately.
	Open(cfg CaptureConfig) (Capture, error)
}
