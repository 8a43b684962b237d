// Package agent implements the session controller: the top-level state
// machine that consumes segmenter output, gates wake detection, drives the
// spoken acknowledgement, arbitrates a single timeout-bounded command
// session, and recovers from capability failures.
//
// The controller runs as one goroutine selecting over the frame stream, the
// segment stream, an injected wake-event channel, the session deadline timer
// and the shutdown context. All session state is confined to that goroutine;
// Status exposes a read-only snapshot guarded by a mutex.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/genievoice/genie/internal/notify"
	"github.com/genievoice/genie/internal/observe"
	"github.com/genievoice/genie/internal/segmenter"
	"github.com/genievoice/genie/internal/wakegate"
	"github.com/genievoice/genie/pkg/audio"
	"github.com/genievoice/genie/pkg/provider/command"
	"github.com/genievoice/genie/pkg/provider/stt"
	"github.com/genievoice/genie/pkg/provider/tts"
	"github.com/genievoice/genie/pkg/provider/wake"
)

const (
	defaultWakePhrase     = "Hey Genie"
	defaultWakeResponse   = "Yes, Master"
	defaultSessionTimeout = 30 * time.Second
	defaultErrorCooldown  = 5 * time.Second
)

// Config holds the controller parameters.
type Config struct {
	// WakePhrase is the phrase that opens a session. Default: "Hey Genie".
	WakePhrase string

	// WakeResponse is spoken when the wake phrase is accepted.
	// Default: "Yes, Master".
	WakeResponse string

	// SessionTimeout bounds how long a command session waits for voiced
	// activity. Default: 30s.
	SessionTimeout time.Duration

	// ErrorCooldown is how long the controller stays in the error phase
	// before recovering to monitoring. Default: 5s.
	ErrorCooldown time.Duration

	// Engine identifiers reported by Status.
	ResponseEngine   string
	TranscribeEngine string
	CommandEngine    string
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.WakePhrase == "" {
		out.WakePhrase = defaultWakePhrase
	}
	if out.WakeResponse == "" {
		out.WakeResponse = defaultWakeResponse
	}
	if out.SessionTimeout <= 0 {
		out.SessionTimeout = defaultSessionTimeout
	}
	if out.ErrorCooldown <= 0 {
		out.ErrorCooldown = defaultErrorCooldown
	}
	return out
}

// Capabilities bundles the external sinks the controller drives. Response
// and Notifier are required; Transcriber and Commands may be nil, in which
// case captured commands are acknowledged but not executed.
type Capabilities struct {
	Response   tts.Engine
	Transcribe stt.Transcriber
	Commands   command.Executor
	Notifier   notify.Sink
}

// Status is a read-only snapshot of the controller, safe to request
// concurrently with the running loop.
type Status struct {
	Phase      Phase  `json:"phase"`
	PhaseName  string `json:"phase_name"`
	Running    bool   `json:"running"`
	WakeEvents uint64 `json:"wake_events"`
	Sessions   uint64 `json:"sessions"`
	Timeouts   uint64 `json:"session_timeouts"`

	ResponseEngine   string `json:"response_engine"`
	TranscribeEngine string `json:"transcribe_engine"`
	CommandEngine    string `json:"command_engine"`
}

// Controller is the session state machine. Create with New, drive with Run.
type Controller struct {
	cfg     Config
	caps    Capabilities
	gate    *wakegate.Gate
	log     *slog.Logger
	metrics *observe.Metrics

	// wakeCh carries externally produced wake events (an online frame
	// matcher running off-loop, or tests) into the select loop.
	wakeCh chan *wake.Event

	// Loop-confined session state.
	deadline  *time.Timer
	deadlineC <-chan time.Time
	sessionID string

	// Snapshot state guarded by mu.
	mu         sync.Mutex
	phase      Phase
	running    bool
	wakeEvents uint64
	sessions   uint64
	timeouts   uint64
}

// New creates a Controller. The gate may be nil when wake events are only
// delivered via Wake.
func New(cfg Config, caps Capabilities, gate *wakegate.Gate, log *slog.Logger, metrics *observe.Metrics) (*Controller, error) {
	if caps.Response == nil {
		return nil, errors.New("agent: response engine must not be nil")
	}
	if caps.Notifier == nil {
		return nil, errors.New("agent: notifier must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Controller{
		cfg:     cfg.withDefaults(),
		caps:    caps,
		gate:    gate,
		log:     log,
		metrics: metrics,
		wakeCh:  make(chan *wake.Event, 4),
		phase:   PhaseIdle,
	}, nil
}

// Wake delivers a wake event into the controller loop. Events arriving while
// the controller is not monitoring are dropped at arrival, so nothing queues
// up behind a session or an error cooldown; the loop re-checks the phase on
// receipt, which closes the window between this check and delivery.
func (c *Controller) Wake(ev *wake.Event) {
	if ev == nil {
		return
	}
	if phase := c.currentPhase(); phase != PhaseMonitoring {
		c.log.Debug("agent: wake event dropped outside monitoring",
			"phase", phase.String())
		return
	}
	select {
	case c.wakeCh <- ev:
	default:
		c.log.Debug("agent: wake channel full, event dropped")
	}
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Phase:            c.phase,
		PhaseName:        c.phase.String(),
		Running:          c.running,
		WakeEvents:       c.wakeEvents,
		Sessions:         c.sessions,
		Timeouts:         c.timeouts,
		ResponseEngine:   c.cfg.ResponseEngine,
		TranscribeEngine: c.cfg.TranscribeEngine,
		CommandEngine:    c.cfg.CommandEngine,
	}
}

// Run consumes the segmenter's two output streams until ctx is cancelled or
// both streams close. It is the only goroutine that mutates session state.
func (c *Controller) Run(ctx context.Context, events <-chan segmenter.FrameEvent, segments <-chan *audio.SpeechSegment) error {
	c.setRunning(true)
	c.setPhase(PhaseMonitoring)
	c.notifyStatus("Backend Ready")

	defer func() {
		c.cancelDeadline()
		c.setPhase(PhaseIdle)
		c.setRunning(false)
		c.notifyStatus("Stopped")
	}()

	for events != nil || segments != nil {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.onFrame(ctx, ev)

		case seg, ok := <-segments:
			if !ok {
				segments = nil
				continue
			}
			c.onSegment(ctx, seg)

		case wev := <-c.wakeCh:
			c.onWake(ctx, wev)

		case <-c.deadlineC:
			c.onDeadline()
		}
	}
	return nil
}

// onFrame handles one passthrough frame event. Wake matching only happens
// while monitoring; frames in every other phase are dropped here so the
// matcher never sees them.
func (c *Controller) onFrame(ctx context.Context, ev segmenter.FrameEvent) {
	if c.currentPhase() != PhaseMonitoring || c.gate == nil {
		return
	}
	if wev := c.gate.EvaluateFrame(ev.Frame); wev != nil {
		c.onWake(ctx, wev)
	}
}

// onSegment handles one completed speech segment. While monitoring it is a
// wake-match candidate; while command-listening it is the command itself.
func (c *Controller) onSegment(ctx context.Context, seg *audio.SpeechSegment) {
	c.metrics.SpeechSegments.Add(ctx, 1)

	switch c.currentPhase() {
	case PhaseMonitoring:
		if c.gate == nil {
			return
		}
		if wev := c.gate.EvaluateSegment(ctx, seg); wev != nil {
			c.onWake(ctx, wev)
		}

	case PhaseCommandListening:
		c.processCommand(ctx, seg)

	default:
		// Segments completing during response playback or processing
		// belong to no session and are discarded.
	}
}

// onWake accepts a wake event if and only if the controller is monitoring,
// then drives the acknowledgement and opens a command session.
func (c *Controller) onWake(ctx context.Context, ev *wake.Event) {
	if c.currentPhase() != PhaseMonitoring {
		c.log.Debug("agent: wake event dropped outside monitoring",
			"phase", c.currentPhase().String())
		return
	}

	c.mu.Lock()
	c.wakeEvents++
	c.mu.Unlock()
	c.metrics.RecordWakeEvent(ctx, ev.Phrase)

	c.log.Info("agent: wake phrase detected",
		"phrase", ev.Phrase, "confidence", ev.Confidence)
	c.setPhase(PhaseWakeDetected)
	c.notifyStatus("Wake word detected")

	c.setPhase(PhaseResponding)
	start := time.Now()
	err := c.caps.Response.Speak(ctx, c.cfg.WakeResponse)
	c.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordCapabilityError(ctx, "tts", c.cfg.ResponseEngine)
		c.enterError(ctx, fmt.Errorf("speak wake response: %w", err))
		return
	}

	c.openSession(ctx)
}

// openSession arms the deadline timer and moves to command listening.
func (c *Controller) openSession(ctx context.Context) {
	c.sessionID = uuid.NewString()

	c.mu.Lock()
	c.sessions++
	c.mu.Unlock()
	c.metrics.Sessions.Add(ctx, 1)
	c.metrics.ActiveSessions.Add(ctx, 1)

	c.armDeadline()
	c.setPhase(PhaseCommandListening)
	c.log.Info("agent: command session opened",
		"session", c.sessionID, "timeout", c.cfg.SessionTimeout)
	c.notify(notify.VoiceStatus(true))
}

// processCommand runs the transcribe → execute → speak chain for a captured
// command segment. Whatever happens, the session is over afterwards.
func (c *Controller) processCommand(ctx context.Context, seg *audio.SpeechSegment) {
	ctx, span := observe.StartSpan(ctx, "session.command")
	defer span.End()

	// Voiced activity observed: the deadline must be cancelled, not merely
	// ignored, so a stale timer can never fire a late transition.
	c.cancelDeadline()
	c.setPhase(PhaseProcessing)
	c.metrics.ActiveSessions.Add(ctx, -1)
	c.notify(notify.VoiceStatus(false))
	sessionID := c.sessionID
	c.sessionID = ""

	if c.caps.Transcribe == nil {
		c.log.Warn("agent: no transcriber configured, dropping command", "session", sessionID)
		c.setPhase(PhaseMonitoring)
		return
	}

	start := time.Now()
	tr, err := c.caps.Transcribe.Transcribe(ctx, seg)
	c.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordCapabilityError(ctx, "stt", c.cfg.TranscribeEngine)
		c.enterError(ctx, fmt.Errorf("transcribe command: %w", err))
		return
	}
	c.log.Info("agent: command transcribed", "session", sessionID, "text", tr.Text)
	c.notify(notify.Transcript(tr.Text))

	if tr.Text == "" || c.caps.Commands == nil {
		c.setPhase(PhaseMonitoring)
		return
	}

	start = time.Now()
	reply, err := c.caps.Commands.Execute(ctx, tr.Text)
	c.metrics.CommandDuration.Record(ctx, time.Since(start).Seconds())
	switch {
	case errors.Is(err, command.ErrUnrecognized):
		reply = "Sorry, I don't know how to do that."
	case err != nil:
		c.metrics.RecordCapabilityError(ctx, "command", c.cfg.CommandEngine)
		c.enterError(ctx, fmt.Errorf("execute command: %w", err))
		return
	}
	c.notify(notify.CommandResult(tr.Text, reply))

	start = time.Now()
	err = c.caps.Response.Speak(ctx, reply)
	c.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordCapabilityError(ctx, "tts", c.cfg.ResponseEngine)
		c.enterError(ctx, fmt.Errorf("speak command result: %w", err))
		return
	}

	c.setPhase(PhaseMonitoring)
}

// onDeadline handles normal session expiry. Not an error: the user simply
// said nothing.
func (c *Controller) onDeadline() {
	c.deadline = nil
	c.deadlineC = nil
	if c.currentPhase() != PhaseCommandListening {
		// A cancelled timer was drained already; a fire in any other phase
		// would be the stale-timer bug.
		return
	}

	ctx := context.Background()
	c.mu.Lock()
	c.timeouts++
	c.mu.Unlock()
	c.metrics.SessionTimeouts.Add(ctx, 1)
	c.metrics.ActiveSessions.Add(ctx, -1)

	c.log.Info("agent: command session expired", "session", c.sessionID)
	c.sessionID = ""
	c.setPhase(PhaseMonitoring)
	c.notify(notify.VoiceStatus(false))
	c.notifyStatus("Session timed out")
}

// enterError transitions to the error phase, waits out the cooldown and
// recovers to monitoring. A capability failure never crashes the pipeline.
func (c *Controller) enterError(ctx context.Context, err error) {
	c.cancelDeadline()
	if c.sessionID != "" {
		c.metrics.ActiveSessions.Add(ctx, -1)
		c.sessionID = ""
	}

	c.log.Error("agent: capability failure, entering cooldown",
		"error", err, "cooldown", c.cfg.ErrorCooldown)
	c.setPhase(PhaseError)
	c.notifyStatus("Error: " + err.Error())
	c.notify(notify.VoiceStatus(false))

	cooldown := time.NewTimer(c.cfg.ErrorCooldown)
	defer cooldown.Stop()
	select {
	case <-ctx.Done():
		return
	case <-cooldown.C:
	}

	c.setPhase(PhaseMonitoring)
	c.notifyStatus("Recovered")
}

// armDeadline starts the session deadline timer, replacing any previous one.
func (c *Controller) armDeadline() {
	c.cancelDeadline()
	c.deadline = time.NewTimer(c.cfg.SessionTimeout)
	c.deadlineC = c.deadline.C
}

// cancelDeadline stops and drains the deadline timer so a stale fire can
// never be observed by the select loop.
func (c *Controller) cancelDeadline() {
	if c.deadline == nil {
		return
	}
	if !c.deadline.Stop() {
		select {
		case <-c.deadline.C:
		default:
		}
	}
	c.deadline = nil
	c.deadlineC = nil
}

func (c *Controller) currentPhase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	prev := c.phase
	c.phase = p
	c.mu.Unlock()
	if prev != p {
		c.log.Debug("agent: phase transition", "from", prev.String(), "to", p.String())
	}
}

func (c *Controller) setRunning(v bool) {
	c.mu.Lock()
	c.running = v
	c.mu.Unlock()
}

func (c *Controller) notifyStatus(message string) {
	c.notify(notify.Status(message))
}

func (c *Controller) notify(ev notify.Event) {
	c.caps.Notifier.Notify(ev)
}
