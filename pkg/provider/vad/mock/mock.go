// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script per-frame confidence scores and inspect the frames
// that were submitted.
//
// Example:
//
//	sess := &mock.Session{Scores: []float64{0.8, 0.8, 0.1}}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/genievoice/genie/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

var _ vad.Engine = (*Engine)(nil)

// ScoreCall records a single invocation of Session.Score.
type ScoreCall struct {
	// Frame is a copy of the bytes passed to Score.
	Frame []byte
}

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Scores is consumed one value per Score call. When exhausted (or nil),
	// Score returns ScoreResult.
	Scores []float64
	next   int

	// ScoreResult is returned once Scores is exhausted.
	ScoreResult float64

	// ScoreErr, if non-nil, is returned by every Score call once Scores is
	// exhausted.
	ScoreErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// ScoreCalls records every call to Score in order.
	ScoreCalls []ScoreCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Score records the call and returns the next scripted score, ScoreErr.
func (s *Session) Score(frame []byte) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.ScoreCalls = append(s.ScoreCalls, ScoreCall{Frame: cp})
	if s.next < len(s.Scores) {
		v := s.Scores[s.next]
		s.next++
		return v, nil
	}
	if s.ScoreErr != nil {
		return 0, s.ScoreErr
	}
	return s.ScoreResult, nil
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

var _ vad.SessionHandle = (*Session)(nil)
