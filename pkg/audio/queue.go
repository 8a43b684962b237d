package audio

import "sync/atomic"

// FrameQueue is a bounded FIFO queue between the capture producer and the
// pipeline consumer. When the queue is full, Push evicts the oldest frame
// rather than blocking — capture liveness is favoured over completeness of
// whichever segment the dropped frame belonged to.
//
// FrameQueue supports exactly one producer goroutine. Any number of
// goroutines may read from Frames, though the pipeline uses a single
// consumer to preserve FIFO processing order.
type FrameQueue struct {
	ch      chan AudioFrame
	dropped atomic.Uint64
}

// NewFrameQueue creates a queue holding at most depth frames.
// A depth below 1 is raised to 1.
func NewFrameQueue(depth int) *FrameQueue {
	if depth < 1 {
		depth = 1
	}
	return &FrameQueue{ch: make(chan AudioFrame, depth)}
}

// Push enqueues f, evicting the oldest queued frame if the queue is full.
// It reports whether a frame was dropped to make room.
//
// Push must only be called from a single producer goroutine, and must not
// be called after Close.
func (q *FrameQueue) Push(f AudioFrame) bool {
	droppedAny := false
	for {
		select {
		case q.ch <- f:
			return droppedAny
		default:
		}
		select {
		case <-q.ch:
			droppedAny = true
			q.dropped.Add(1)
		default:
		}
	}
}

// Frames returns the receive side of the queue. The channel is closed by
// Close once the producer is done.
func (q *FrameQueue) Frames() <-chan AudioFrame {
	return q.ch
}

// Dropped returns the total number of frames evicted under backpressure.
// Safe to call concurrently with Push.
func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close marks the end of the stream. The consumer sees the remaining queued
// frames, then channel closure. Push must not be called after Close.
func (q *FrameQueue) Close() {
	close(q.ch)
}
