package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/genievoice/genie/internal/notify"
	"github.com/genievoice/genie/internal/segmenter"
	"github.com/genievoice/genie/internal/wakegate"
	"github.com/genievoice/genie/pkg/audio"
	"github.com/genievoice/genie/pkg/provider/command"
	cmdmock "github.com/genievoice/genie/pkg/provider/command/mock"
	sttmock "github.com/genievoice/genie/pkg/provider/stt/mock"
	ttsmock "github.com/genievoice/genie/pkg/provider/tts/mock"
	"github.com/genievoice/genie/pkg/provider/wake"
	wakemock "github.com/genievoice/genie/pkg/provider/wake/mock"
)

// recordingSink captures notifications for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *recordingSink) Notify(ev notify.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) byType(typ string) []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notify.Event
	for _, ev := range s.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func testSegment(voiced time.Duration) *audio.SpeechSegment {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &audio.SpeechSegment{
		Frames: []audio.AudioFrame{{
			Data:       make([]byte, 960),
			SampleRate: 16000,
			Timestamp:  start,
		}},
		Start:  start,
		End:    start.Add(voiced),
		Voiced: voiced,
	}
}

func wakeEvent() *wake.Event {
	return &wake.Event{
		Timestamp:  time.Now(),
		Confidence: 0.9,
		Phrase:     "hey genie",
	}
}

type harness struct {
	ctrl     *Controller
	tts      *ttsmock.Engine
	stt      *sttmock.Transcriber
	cmd      *cmdmock.Executor
	matcher  *wakemock.SegmentMatcher
	sink     *recordingSink
	events   chan segmenter.FrameEvent
	segments chan *audio.SpeechSegment
	done     chan struct{}
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		tts:      &ttsmock.Engine{},
		stt:      &sttmock.Transcriber{},
		cmd:      &cmdmock.Executor{},
		matcher:  &wakemock.SegmentMatcher{},
		sink:     &recordingSink{},
		events:   make(chan segmenter.FrameEvent),
		segments: make(chan *audio.SpeechSegment),
		done:     make(chan struct{}),
	}

	gate, err := wakegate.New(slog.Default(), wakegate.WithSegmentMatcher(h.matcher))
	if err != nil {
		t.Fatalf("wakegate.New: %v", err)
	}

	caps := Capabilities{
		Response:   h.tts,
		Transcribe: h.stt,
		Commands:   h.cmd,
		Notifier:   h.sink,
	}
	h.ctrl, err = New(cfg, caps, gate, slog.Default(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)
	go func() {
		defer close(h.done)
		h.ctrl.Run(ctx, h.events, h.segments)
	}()

	h.waitFor(t, func(st Status) bool { return st.Phase == PhaseMonitoring })
	return h
}

// waitFor polls Status until cond holds or the test deadline is blown.
func (h *harness) waitFor(t *testing.T, cond func(Status) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond(h.ctrl.Status()) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached, status %+v", h.ctrl.Status())
}

// openSession drives a wake detection through the segment path and waits for
// the controller to reach command listening.
func (h *harness) openSession(t *testing.T) {
	t.Helper()
	h.matcher.Events = append(h.matcher.Events, wakeEvent())
	h.segments <- testSegment(time.Second)
	h.waitFor(t, func(st Status) bool { return st.Phase == PhaseCommandListening })
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, Capabilities{Notifier: &recordingSink{}}, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil response engine")
	}
	if _, err := New(Config{}, Capabilities{Response: &ttsmock.Engine{}}, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil notifier")
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := (&Config{}).withDefaults()
	if cfg.WakePhrase != "Hey Genie" {
		t.Errorf("WakePhrase = %q", cfg.WakePhrase)
	}
	if cfg.WakeResponse != "Yes, Master" {
		t.Errorf("WakeResponse = %q", cfg.WakeResponse)
	}
	if cfg.SessionTimeout != 30*time.Second {
		t.Errorf("SessionTimeout = %v", cfg.SessionTimeout)
	}
	if cfg.ErrorCooldown != 5*time.Second {
		t.Errorf("ErrorCooldown = %v", cfg.ErrorCooldown)
	}
}

func TestWakeOpensCommandSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.openSession(t)

	st := h.ctrl.Status()
	if st.WakeEvents != 1 {
		t.Errorf("WakeEvents = %d, want 1", st.WakeEvents)
	}
	if st.Sessions != 1 {
		t.Errorf("Sessions = %d, want 1", st.Sessions)
	}
	if spoken := h.tts.Spoken(); len(spoken) != 1 || spoken[0] != "Yes, Master" {
		t.Errorf("spoken = %v, want [Yes, Master]", spoken)
	}

	listening := h.sink.byType(notify.TypeVoiceStatus)
	if len(listening) != 1 || listening[0].Listening == nil || !*listening[0].Listening {
		t.Errorf("voice_status events = %+v, want one listening=true", listening)
	}
}

func TestSpeakFailureEntersErrorThenRecovers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{ErrorCooldown: 20 * time.Millisecond})
	h.tts.Errs = []error{errors.New("audio device gone")}

	h.matcher.Events = append(h.matcher.Events, wakeEvent())
	h.segments <- testSegment(time.Second)

	// Cooldown elapses inside the loop, so we only ever observe the
	// recovered state; the session must not have been counted.
	h.waitFor(t, func(st Status) bool {
		return st.Phase == PhaseMonitoring && st.WakeEvents == 1
	})
	if st := h.ctrl.Status(); st.Sessions != 0 {
		t.Errorf("Sessions = %d, want 0", st.Sessions)
	}
	if evs := h.sink.byType(notify.TypeStatus); len(evs) < 2 {
		t.Errorf("expected error and recovery status events, got %+v", evs)
	}
}

func TestWakeDuringErrorCooldownNotHonoredAfterRecovery(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{ErrorCooldown: 100 * time.Millisecond})
	h.tts.Errs = []error{errors.New("audio device gone")}

	h.matcher.Events = append(h.matcher.Events, wakeEvent())
	h.segments <- testSegment(time.Second)
	h.waitFor(t, func(st Status) bool { return st.Phase == PhaseError })

	// Delivered mid-cooldown: the event must be dropped on arrival, not
	// queued and replayed once the controller recovers to monitoring.
	h.ctrl.Wake(wakeEvent())

	h.waitFor(t, func(st Status) bool { return st.Phase == PhaseMonitoring })
	time.Sleep(30 * time.Millisecond)

	st := h.ctrl.Status()
	if st.WakeEvents != 1 {
		t.Errorf("WakeEvents = %d, want 1 (cooldown-era wake must not count)", st.WakeEvents)
	}
	if st.Sessions != 0 {
		t.Errorf("Sessions = %d, want 0", st.Sessions)
	}
	if spoken := h.tts.Spoken(); len(spoken) != 1 {
		t.Errorf("spoken = %v, want only the failed acknowledgement attempt", spoken)
	}
}

func TestWakeIgnoredOutsideMonitoring(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.openSession(t)

	h.ctrl.Wake(wakeEvent())
	h.ctrl.Wake(wakeEvent())
	time.Sleep(30 * time.Millisecond)

	st := h.ctrl.Status()
	if st.WakeEvents != 1 {
		t.Errorf("WakeEvents = %d, want 1 (wake during session must be dropped)", st.WakeEvents)
	}
	if st.Phase != PhaseCommandListening {
		t.Errorf("Phase = %v, want command_listening", st.Phase)
	}
}

func TestCommandFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.stt.Result.Text = "what time is it"
	h.cmd.Reply = "It is noon."

	h.openSession(t)
	h.segments <- testSegment(800 * time.Millisecond)
	h.waitFor(t, func(st Status) bool { return st.Phase == PhaseMonitoring })

	if spoken := h.tts.Spoken(); len(spoken) != 2 || spoken[1] != "It is noon." {
		t.Errorf("spoken = %v, want reply as second utterance", spoken)
	}
	if calls := h.cmd.ExecuteCalls; len(calls) != 1 || calls[0] != "what time is it" {
		t.Errorf("ExecuteCalls = %v", h.cmd.ExecuteCalls)
	}

	tr := h.sink.byType(notify.TypeTranscript)
	if len(tr) != 1 || tr[0].Text != "what time is it" {
		t.Errorf("transcript events = %+v", tr)
	}
	res := h.sink.byType(notify.TypeCommandResult)
	if len(res) != 1 || res[0].Command != "what time is it" || res[0].Result != "It is noon." {
		t.Errorf("command_result events = %+v", res)
	}
}

func TestUnrecognizedCommandSpokenNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.stt.Result.Text = "fremulate the broxx"
	h.cmd.Err = command.ErrUnrecognized

	h.openSession(t)
	h.segments <- testSegment(800 * time.Millisecond)
	h.waitFor(t, func(st Status) bool { return st.Phase == PhaseMonitoring })

	spoken := h.tts.Spoken()
	if len(spoken) != 2 || spoken[1] != "Sorry, I don't know how to do that." {
		t.Errorf("spoken = %v, want fallback reply", spoken)
	}
}

func TestTranscribeFailureEntersError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{ErrorCooldown: 20 * time.Millisecond})
	h.stt.Err = errors.New("model crashed")

	h.openSession(t)
	sessionsBefore := h.ctrl.Status().Sessions
	h.segments <- testSegment(800 * time.Millisecond)
	h.waitFor(t, func(st Status) bool { return st.Phase == PhaseMonitoring })

	if got := h.ctrl.Status().Sessions; got != sessionsBefore {
		t.Errorf("Sessions = %d, want unchanged %d", got, sessionsBefore)
	}
	if len(h.cmd.ExecuteCalls) != 0 {
		t.Errorf("executor must not run after transcription failure, calls %v", h.cmd.ExecuteCalls)
	}
}

func TestSessionDeadlineExpiresExactlyOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{SessionTimeout: 40 * time.Millisecond})
	h.openSession(t)

	h.waitFor(t, func(st Status) bool {
		return st.Phase == PhaseMonitoring && st.Timeouts == 1
	})

	// Give a hypothetical second fire time to land.
	time.Sleep(80 * time.Millisecond)
	st := h.ctrl.Status()
	if st.Timeouts != 1 {
		t.Errorf("Timeouts = %d, want exactly 1", st.Timeouts)
	}
	if st.Phase != PhaseMonitoring {
		t.Errorf("Phase = %v, want monitoring", st.Phase)
	}

	listening := h.sink.byType(notify.TypeVoiceStatus)
	if len(listening) != 2 || listening[1].Listening == nil || *listening[1].Listening {
		t.Errorf("voice_status events = %+v, want listening=false after expiry", listening)
	}
}

func TestCommandCancelsDeadline(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{SessionTimeout: 50 * time.Millisecond})
	h.stt.Result.Text = "hello"
	h.cmd.Reply = "Hello! How can I help you?"

	h.openSession(t)
	h.segments <- testSegment(800 * time.Millisecond)
	h.waitFor(t, func(st Status) bool { return st.Phase == PhaseMonitoring })

	// Well past the original deadline: the cancelled timer must not fire.
	time.Sleep(120 * time.Millisecond)
	st := h.ctrl.Status()
	if st.Timeouts != 0 {
		t.Errorf("Timeouts = %d, want 0 (deadline was cancelled by the command)", st.Timeouts)
	}
	if st.Phase != PhaseMonitoring {
		t.Errorf("Phase = %v, want monitoring", st.Phase)
	}
}

func TestSecondWakeAfterSessionCompletes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.stt.Result.Text = "hello"

	h.openSession(t)
	h.segments <- testSegment(800 * time.Millisecond)
	h.waitFor(t, func(st Status) bool { return st.Phase == PhaseMonitoring })

	h.openSession(t)
	st := h.ctrl.Status()
	if st.WakeEvents != 2 {
		t.Errorf("WakeEvents = %d, want 2", st.WakeEvents)
	}
	if st.Sessions != 2 {
		t.Errorf("Sessions = %d, want 2", st.Sessions)
	}
}

func TestSegmentWithoutWakeStaysMonitoring(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})

	// No scripted wake event: the matcher reports no detection.
	h.segments <- testSegment(time.Second)
	time.Sleep(20 * time.Millisecond)

	st := h.ctrl.Status()
	if st.Phase != PhaseMonitoring {
		t.Errorf("Phase = %v, want monitoring", st.Phase)
	}
	if st.WakeEvents != 0 {
		t.Errorf("WakeEvents = %d, want 0", st.WakeEvents)
	}
	if len(h.tts.Spoken()) != 0 {
		t.Errorf("nothing should have been spoken, got %v", h.tts.Spoken())
	}
}

func TestShutdownReturnsToIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.cancel()
	<-h.done

	st := h.ctrl.Status()
	if st.Running {
		t.Error("Running = true after shutdown")
	}
	if st.Phase != PhaseIdle {
		t.Errorf("Phase = %v, want idle", st.Phase)
	}
}

func TestRunEndsWhenStreamsClose(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	close(h.events)
	close(h.segments)
	<-h.done

	if st := h.ctrl.Status(); st.Running {
		t.Error("Running = true after streams closed")
	}
}

func TestStatusReportsEngines(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{
		ResponseEngine:   "piper",
		TranscribeEngine: "whisper",
		CommandEngine:    "builtin",
	})

	st := h.ctrl.Status()
	if st.ResponseEngine != "piper" || st.TranscribeEngine != "whisper" || st.CommandEngine != "builtin" {
		t.Errorf("engine ids = %q %q %q", st.ResponseEngine, st.TranscribeEngine, st.CommandEngine)
	}
	if st.PhaseName != "monitoring" {
		t.Errorf("PhaseName = %q", st.PhaseName)
	}
}

func TestFrameWakeDetection(t *testing.T) {
	t.Parallel()

	matcher := &wakemock.FrameMatcher{Events: []*wake.Event{wakeEvent()}}
	gate, err := wakegate.New(slog.Default(), wakegate.WithFrameMatcher(matcher))
	if err != nil {
		t.Fatalf("wakegate.New: %v", err)
	}

	sink := &recordingSink{}
	ctrl, err := New(Config{}, Capabilities{
		Response: &ttsmock.Engine{},
		Notifier: sink,
	}, gate, slog.Default(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events := make(chan segmenter.FrameEvent)
	segments := make(chan *audio.SpeechSegment)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.Run(ctx, events, segments)
	}()

	events <- segmenter.FrameEvent{
		Frame:      audio.AudioFrame{Data: make([]byte, 960), SampleRate: 16000, Timestamp: time.Now()},
		Speech:     true,
		Confidence: 0.9,
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := ctrl.Status(); st.WakeEvents == 1 && st.Phase == PhaseCommandListening {
			cancel()
			<-done
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("frame wake never opened a session, status %+v", ctrl.Status())
}
