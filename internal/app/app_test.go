package app

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/genievoice/genie/internal/config"
	"github.com/genievoice/genie/pkg/audio"
	audiomock "github.com/genievoice/genie/pkg/audio/mock"
	cmdmock "github.com/genievoice/genie/pkg/provider/command/mock"
	sttmock "github.com/genievoice/genie/pkg/provider/stt/mock"
	ttsmock "github.com/genievoice/genie/pkg/provider/tts/mock"
	vadmock "github.com/genievoice/genie/pkg/provider/vad/mock"
	"github.com/genievoice/genie/pkg/provider/wake"
	wakemock "github.com/genievoice/genie/pkg/provider/wake/mock"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.ListenAddr = "127.0.0.1:0"
	return cfg
}

func testProviders() *Providers {
	return &Providers{
		Audio:   &audiomock.Source{},
		VAD:     &vadmock.Engine{},
		Wake:    &wakemock.SegmentMatcher{},
		STT:     &sttmock.Transcriber{},
		TTS:     &ttsmock.Engine{},
		Command: &cmdmock.Executor{},
	}
}

// voicedFrames builds a run of frames that the scripted classifier will turn
// into exactly one confirmed segment.
func voicedFrames(n int) []audio.AudioFrame {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	frames := make([]audio.AudioFrame, n)
	for i := range frames {
		frames[i] = audio.AudioFrame{
			Data:       make([]byte, 960),
			SampleRate: 16000,
			Timestamp:  base.Add(time.Duration(i) * 30 * time.Millisecond),
		}
	}
	return frames
}

func scores(voiced, silent int) []float64 {
	out := make([]float64, 0, voiced+silent)
	for range voiced {
		out = append(out, 0.8)
	}
	for range silent {
		out = append(out, 0.1)
	}
	return out
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	cfg := testConfig()

	if _, err := New(cfg, nil); err == nil {
		t.Error("expected error for nil providers")
	}

	p := testProviders()
	p.VAD = nil
	if _, err := New(cfg, p); err == nil || !strings.Contains(err.Error(), "VAD") {
		t.Errorf("missing VAD err = %v", err)
	}

	p = testProviders()
	p.Wake = nil
	if _, err := New(cfg, p); err == nil || !strings.Contains(err.Error(), "wake") {
		t.Errorf("missing wake err = %v", err)
	}

	p = testProviders()
	p.TTS = nil
	if _, err := New(cfg, p); err == nil || !strings.Contains(err.Error(), "TTS") {
		t.Errorf("missing TTS err = %v", err)
	}
}

func TestRunWakeToSessionPipeline(t *testing.T) {
	t.Parallel()

	// 10 voiced frames then silence: one segment. The wake matcher accepts
	// it and the controller opens a command session.
	capture := audiomock.NewCapture(voicedFrames(40))
	p := testProviders()
	p.Audio = &audiomock.Source{Capture: capture}
	p.VAD = &vadmock.Engine{Session: &vadmock.Session{Scores: scores(10, 30)}}
	p.Wake = &wakemock.SegmentMatcher{Events: []*wake.Event{{
		Timestamp:  time.Now(),
		Confidence: 0.9,
		Phrase:     "hey genie",
	}}}

	a, err := New(testConfig(), p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := a.Status(); st.Sessions == 1 && st.WakeEvents == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	st := a.Status()
	if st.WakeEvents != 1 || st.Sessions != 1 {
		t.Fatalf("status = %+v, want one wake event and one session", st)
	}

	tts := p.TTS.(*ttsmock.Engine)
	if spoken := tts.Spoken(); len(spoken) != 1 || spoken[0] != "Yes, Master" {
		t.Errorf("spoken = %v", spoken)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestMaxSensitivityDetectsQuietSpeech(t *testing.T) {
	t.Parallel()

	// At sensitivity 1.0 the derived threshold bottoms out at a small
	// positive floor rather than zero, so it survives the segmenter's
	// zero-means-default handling and quiet frames still count as speech.
	quiet := make([]float64, 0, 40)
	for range 10 {
		quiet = append(quiet, 0.3)
	}
	for range 30 {
		quiet = append(quiet, 0.0)
	}

	capture := audiomock.NewCapture(voicedFrames(40))
	p := testProviders()
	p.Audio = &audiomock.Source{Capture: capture}
	p.VAD = &vadmock.Engine{Session: &vadmock.Session{Scores: quiet}}
	p.Wake = &wakemock.SegmentMatcher{Events: []*wake.Event{{
		Timestamp:  time.Now(),
		Confidence: 0.9,
		Phrase:     "hey genie",
	}}}

	cfg := testConfig()
	cfg.VAD.Sensitivity = 1.0

	a, err := New(cfg, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := a.Status(); st.WakeEvents == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st := a.Status(); st.WakeEvents != 1 || st.Sessions != 1 {
		t.Fatalf("status = %+v, want quiet speech to produce a wake event and a session", st)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunOpensCaptureWithConfiguredFormat(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{Capture: audiomock.NewCapture(nil)}
	p := testProviders()
	p.Audio = src

	cfg := testConfig()
	cfg.Audio.SampleRate = 16000
	cfg.Audio.FrameSizeMs = 20
	cfg.Audio.QueueDepth = 32

	a, err := New(cfg, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// The capture stream is empty and closed, so Run winds down on its own.
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(src.OpenCalls) != 1 {
		t.Fatalf("OpenCalls = %d, want 1", len(src.OpenCalls))
	}
	got := src.OpenCalls[0].Cfg
	if got.SampleRate != 16000 || got.FrameSizeMs != 20 || got.QueueDepth != 32 {
		t.Errorf("capture config = %+v", got)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	p := testProviders()
	p.TTSName = "piper"
	p.STTName = "whisper"
	p.CommandName = "builtin"

	a, err := New(testConfig(), p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	var st struct {
		PhaseName      string `json:"phase_name"`
		Running        bool   `json:"running"`
		ResponseEngine string `json:"response_engine"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Running {
		t.Error("Running = true before Run")
	}
	if st.PhaseName != "idle" {
		t.Errorf("PhaseName = %q, want idle", st.PhaseName)
	}
	if st.ResponseEngine != "piper" {
		t.Errorf("ResponseEngine = %q", st.ResponseEngine)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	a, err := New(testConfig(), testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("/healthz = %d", resp.StatusCode)
	}

	// Not running yet: readiness must fail.
	resp, err = srv.Client().Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 503 {
		t.Errorf("/readyz = %d, want 503 before Run", resp.StatusCode)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	t.Parallel()

	p := testProviders()
	session := &vadmock.Session{}
	p.VAD = &vadmock.Engine{Session: session}

	a, err := New(testConfig(), p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if session.CloseCallCount != 1 {
		t.Errorf("classifier session CloseCallCount = %d, want 1", session.CloseCallCount)
	}
}
