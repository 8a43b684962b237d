// Package mock provides a test double for the stt.Transcriber interface.
package mock

import (
	"context"
	"sync"

	"github.com/genievoice/genie/pkg/audio"
	"github.com/genievoice/genie/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Segment is the segment passed to Transcribe.
	Segment *audio.SpeechSegment
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call.
	Result stt.Transcript

	// Results, when non-empty, is consumed one value per call before
	// falling back to Result.
	Results []stt.Transcript
	next    int

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Transcribe records the call and returns the scripted transcript, Err.
func (t *Transcriber) Transcribe(ctx context.Context, seg *audio.SpeechSegment) (stt.Transcript, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{Segment: seg})
	if t.Err != nil {
		return stt.Transcript{}, t.Err
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	if t.next < len(t.Results) {
		r := t.Results[t.next]
		t.next++
		return r, nil
	}
	return t.Result, nil
}

// Close records the call and returns CloseErr.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CloseCallCount++
	return t.CloseErr
}

var _ stt.Transcriber = (*Transcriber)(nil)
