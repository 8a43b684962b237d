// Package wakegate evaluates frames and completed segments against the
// configured wake matchers. The gate itself is stateless per call: phase
// gating (only consulting the gate while monitoring) is the session
// controller's job, which keeps this package a thin, easily testable shim.
//
// Matcher failure is a degraded-mode condition, not a pipeline fault: the
// gate reports no detection, logs the error and invokes the OnDegraded hook
// so the condition can be surfaced to operators.
package wakegate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/genievoice/genie/pkg/audio"
	"github.com/genievoice/genie/pkg/provider/wake"
)

// Gate funnels frames and segments to the configured matchers. Either
// matcher may be nil; the corresponding Evaluate method then reports no
// detection. Safe for concurrent use when the matchers are.
type Gate struct {
	frames   wake.FrameMatcher
	segments wake.SegmentMatcher
	log      *slog.Logger

	// onDegraded, when set, is invoked with the matcher error after a
	// failed evaluation.
	onDegraded func(err error)
}

// Option is a functional option for configuring a [Gate].
type Option func(*Gate)

// WithFrameMatcher sets the online per-frame matcher.
func WithFrameMatcher(m wake.FrameMatcher) Option {
	return func(g *Gate) { g.frames = m }
}

// WithSegmentMatcher sets the segment-level matcher.
func WithSegmentMatcher(m wake.SegmentMatcher) Option {
	return func(g *Gate) { g.segments = m }
}

// WithOnDegraded registers a hook invoked whenever a matcher fails. The hook
// must not block.
func WithOnDegraded(fn func(err error)) Option {
	return func(g *Gate) { g.onDegraded = fn }
}

// New creates a Gate. At least one matcher must be configured.
func New(log *slog.Logger, opts ...Option) (*Gate, error) {
	if log == nil {
		log = slog.Default()
	}
	g := &Gate{log: log}
	for _, o := range opts {
		o(g)
	}
	if g.frames == nil && g.segments == nil {
		return nil, errors.New("wakegate: at least one matcher must be configured")
	}
	return g, nil
}

// EvaluateFrame runs the frame matcher over one frame. Returns nil when no
// frame matcher is configured, nothing was detected, or the matcher failed.
func (g *Gate) EvaluateFrame(frame audio.AudioFrame) *wake.Event {
	if g.frames == nil {
		return nil
	}
	ev, err := g.frames.MatchFrame(frame)
	if err != nil {
		g.degraded("frame", err)
		return nil
	}
	return ev
}

// EvaluateSegment runs the segment matcher over one completed segment.
// Returns nil when no segment matcher is configured, nothing was detected,
// or the matcher failed.
func (g *Gate) EvaluateSegment(ctx context.Context, seg *audio.SpeechSegment) *wake.Event {
	if g.segments == nil || seg == nil {
		return nil
	}
	ev, err := g.segments.MatchSegment(ctx, seg)
	if err != nil {
		g.degraded("segment", err)
		return nil
	}
	return ev
}

func (g *Gate) degraded(kind string, err error) {
	g.log.Warn("wakegate: matcher failed, reporting no detection",
		"matcher", kind, "error", err)
	if g.onDegraded != nil {
		g.onDegraded(err)
	}
}
