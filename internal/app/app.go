// Package app wires all Genie subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture → segmentation → session pipeline
// alongside the HTTP surface, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via the Providers struct and the
// functional options (WithNotifier, WithMetrics, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/genievoice/genie/internal/agent"
	"github.com/genievoice/genie/internal/config"
	"github.com/genievoice/genie/internal/health"
	"github.com/genievoice/genie/internal/notify"
	"github.com/genievoice/genie/internal/observe"
	"github.com/genievoice/genie/internal/segmenter"
	"github.com/genievoice/genie/internal/wakegate"
	"github.com/genievoice/genie/pkg/audio"
	"github.com/genievoice/genie/pkg/provider/command"
	"github.com/genievoice/genie/pkg/provider/stt"
	"github.com/genievoice/genie/pkg/provider/tts"
	"github.com/genievoice/genie/pkg/provider/vad"
	"github.com/genievoice/genie/pkg/provider/wake"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Audio   audio.Source
	VAD     vad.Engine
	Wake    wake.SegmentMatcher
	STT     stt.Transcriber
	TTS     tts.Engine
	Command command.Executor

	// Engine identifiers reported by the status endpoint.
	TTSName     string
	STTName     string
	CommandName string
}

// App owns all subsystem lifetimes and orchestrates the Genie voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	metrics   *observe.Metrics

	// Subsystems — initialised in New, torn down in Shutdown.
	vadSession vad.SessionHandle
	seg        *segmenter.Segmenter
	gate       *wakegate.Gate
	wsServer   *notify.Server
	notifier   notify.Sink
	controller *agent.Controller
	httpServer *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger sets the structured logger used by all subsystems.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithMetrics injects a metrics bundle instead of using the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithNotifier injects an extra notification sink alongside the built-in
// log sink and WebSocket server.
func WithNotifier(s notify.Sink) Option {
	return func(a *App) { a.notifier = s }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, errors.New("app: providers must not be nil")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initSegmentation(); err != nil {
		return nil, fmt.Errorf("app: init segmentation: %w", err)
	}
	if err := a.initWakeGate(); err != nil {
		return nil, fmt.Errorf("app: init wake gate: %w", err)
	}
	a.initNotify()
	if err := a.initController(); err != nil {
		return nil, fmt.Errorf("app: init controller: %w", err)
	}
	a.initHTTP()

	return a, nil
}

// initSegmentation creates the classifier session and the segmenter.
func (a *App) initSegmentation() error {
	if a.providers.VAD == nil {
		return errors.New("a VAD engine is required")
	}
	session, err := a.providers.VAD.NewSession(vad.Config{
		SampleRate:  a.cfg.Audio.SampleRate,
		FrameSizeMs: a.cfg.Audio.FrameSizeMs,
	})
	if err != nil {
		return fmt.Errorf("open classifier session: %w", err)
	}
	a.vadSession = session
	a.closers = append(a.closers, session.Close)

	seg, err := segmenter.New(segmenter.Config{
		Threshold:    a.cfg.VAD.Threshold(),
		MinSpeech:    a.cfg.VAD.MinSpeech(),
		MinSilence:   a.cfg.VAD.MinSilence(),
		BufferFrames: a.cfg.VAD.BufferFrames,
	}, session, a.log)
	if err != nil {
		return err
	}
	a.seg = seg
	return nil
}

// initWakeGate creates the wake gate from the configured segment matcher.
func (a *App) initWakeGate() error {
	if a.providers.Wake == nil {
		return errors.New("a wake matcher is required")
	}
	gate, err := wakegate.New(a.log,
		wakegate.WithSegmentMatcher(a.providers.Wake),
		wakegate.WithOnDegraded(func(err error) {
			a.metrics.RecordCapabilityError(context.Background(), "wake", "")
		}),
	)
	if err != nil {
		return err
	}
	a.gate = gate
	return nil
}

// initNotify assembles the notification fan-out: structured log, WebSocket
// broadcast, plus any injected sink.
func (a *App) initNotify() {
	a.wsServer = notify.NewServer(a.log)
	a.closers = append(a.closers, a.wsServer.Close)

	sinks := notify.Sinks{&notify.LogSink{Log: a.log}, a.wsServer}
	if a.notifier != nil {
		sinks = append(sinks, a.notifier)
	}
	a.notifier = sinks
}

// initController builds the session controller over the configured
// capabilities.
func (a *App) initController() error {
	if a.providers.TTS == nil {
		return errors.New("a TTS engine is required")
	}
	ctrl, err := agent.New(agent.Config{
		WakePhrase:       a.cfg.Wake.Phrase,
		WakeResponse:     a.cfg.Wake.Response,
		SessionTimeout:   a.cfg.Session.Timeout(),
		ErrorCooldown:    a.cfg.Session.ErrorCooldown(),
		ResponseEngine:   a.providers.TTSName,
		TranscribeEngine: a.providers.STTName,
		CommandEngine:    a.providers.CommandName,
	}, agent.Capabilities{
		Response:   a.providers.TTS,
		Transcribe: a.providers.STT,
		Commands:   a.providers.Command,
		Notifier:   a.notifier,
	}, a.gate, a.log, a.metrics)
	if err != nil {
		return err
	}
	a.controller = ctrl
	return nil
}

// initHTTP builds the HTTP surface: health probes, Prometheus metrics, the
// status endpoint and the WebSocket event stream.
func (a *App) initHTTP() {
	mux := http.NewServeMux()

	h := health.New(
		health.Checker{Name: "pipeline", Check: func(ctx context.Context) error {
			if !a.controller.Status().Running {
				return errors.New("controller not running")
			}
			return nil
		}},
	)
	h.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(a.controller.Status()); err != nil {
			a.log.Warn("encode status response", "error", err)
		}
	})
	mux.Handle("GET /ws", a.wsServer)

	a.httpServer = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Handler exposes the HTTP surface, mainly for tests.
func (a *App) Handler() http.Handler { return a.httpServer.Handler }

// Status returns the controller's current snapshot.
func (a *App) Status() agent.Status { return a.controller.Status() }

// Run starts the pipeline and the HTTP server and blocks until ctx is
// cancelled or a subsystem fails.
//
// The pipeline is capture → frame queue → segmenter → controller. The
// capture backend runs its own producer; everything downstream of it is
// driven by the goroutines started here.
func (a *App) Run(ctx context.Context) error {
	if a.providers.Audio == nil {
		return errors.New("app: an audio source is required")
	}
	capture, err := a.providers.Audio.Open(audio.CaptureConfig{
		SampleRate:  a.cfg.Audio.SampleRate,
		FrameSizeMs: a.cfg.Audio.FrameSizeMs,
		QueueDepth:  a.cfg.Audio.QueueDepth,
	})
	if err != nil {
		return fmt.Errorf("app: open capture: %w", err)
	}
	defer capture.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, segments := a.seg.Run(runCtx, capture.Frames())

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// When the frame stream ends the controller returns; cancel so the
		// HTTP server and the drop reporter wind down with it.
		defer cancel()
		err := a.controller.Run(gctx, events, segments)
		// The segmenter closes both channels once it sees the cancelled
		// context; drain them so any send already in flight completes.
		go audio.Drain(events)
		go audio.Drain(segments)
		return err
	})

	g.Go(func() error {
		a.reportDropped(gctx, capture)
		return nil
	})

	g.Go(func() error {
		err := a.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	})

	a.log.Info("app running",
		"listen_addr", a.cfg.Server.ListenAddr,
		"wake_phrase", a.cfg.Wake.Phrase,
		"sample_rate", a.cfg.Audio.SampleRate,
	)
	return g.Wait()
}

// reportDropped periodically publishes the capture backend's drop counter as
// a metric delta.
func (a *App) reportDropped(ctx context.Context, capture audio.Capture) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := capture.Dropped()
			if delta := now - last; delta > 0 {
				a.metrics.DroppedFrames.Add(ctx, int64(delta))
				a.log.Warn("capture dropped frames under backpressure", "dropped", delta)
			}
			last = now
		}
	}
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
