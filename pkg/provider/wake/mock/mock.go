// Package mock provides configurable in-memory implementations of the wake
// matcher interfaces for use in unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/genievoice/genie/pkg/audio"
	"github.com/genievoice/genie/pkg/provider/wake"
)

// FrameMatcher is a mock implementation of [wake.FrameMatcher]. It records
// every call and returns the configured results.
type FrameMatcher struct {
	mu sync.Mutex

	// Events is consumed one per call; when exhausted, Event is returned.
	Events []*wake.Event

	// Event is the default result once Events is exhausted.
	Event *wake.Event

	// Err, when set, is returned by every call.
	Err error

	// FrameCalls records the frames passed to MatchFrame.
	FrameCalls []audio.AudioFrame
}

// MatchFrame records the call and returns the next configured result.
func (m *FrameMatcher) MatchFrame(frame audio.AudioFrame) (*wake.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FrameCalls = append(m.FrameCalls, frame)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Events) > 0 {
		ev := m.Events[0]
		m.Events = m.Events[1:]
		return ev, nil
	}
	return m.Event, nil
}

// SegmentMatcher is a mock implementation of [wake.SegmentMatcher]. It
// records every call and returns the configured results.
type SegmentMatcher struct {
	mu sync.Mutex

	// Events is consumed one per call; when exhausted, Event is returned.
	Events []*wake.Event

	// Event is the default result once Events is exhausted.
	Event *wake.Event

	// Err, when set, is returned by every call.
	Err error

	// SegmentCalls records the segments passed to MatchSegment.
	SegmentCalls []*audio.SpeechSegment
}

// MatchSegment records the call and returns the next configured result. It
// honours ctx cancellation before producing a result.
func (m *SegmentMatcher) MatchSegment(ctx context.Context, seg *audio.SpeechSegment) (*wake.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SegmentCalls = append(m.SegmentCalls, seg)
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Events) > 0 {
		ev := m.Events[0]
		m.Events = m.Events[1:]
		return ev, nil
	}
	return m.Event, nil
}

var (
	_ wake.FrameMatcher   = (*FrameMatcher)(nil)
	_ wake.SegmentMatcher = (*SegmentMatcher)(nil)
)
