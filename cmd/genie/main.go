// Command genie is the main entry point for the Genie voice pipeline server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/genievoice/genie/internal/app"
	"github.com/genievoice/genie/internal/config"
	"github.com/genievoice/genie/internal/observe"
	"github.com/genievoice/genie/internal/resilience"
	"github.com/genievoice/genie/pkg/audio"
	portaudiosrc "github.com/genievoice/genie/pkg/audio/portaudio"
	"github.com/genievoice/genie/pkg/provider/command"
	"github.com/genievoice/genie/pkg/provider/command/builtin"
	oaicommand "github.com/genievoice/genie/pkg/provider/command/openai"
	"github.com/genievoice/genie/pkg/provider/stt"
	"github.com/genievoice/genie/pkg/provider/stt/whisper"
	"github.com/genievoice/genie/pkg/provider/tts"
	"github.com/genievoice/genie/pkg/provider/tts/espeak"
	"github.com/genievoice/genie/pkg/provider/tts/piper"
	"github.com/genievoice/genie/pkg/provider/vad"
	vadenergy "github.com/genievoice/genie/pkg/provider/vad/energy"
	wakeenergy "github.com/genievoice/genie/pkg/provider/wake/energy"
	"github.com/genievoice/genie/pkg/provider/wake/phrase"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// A .env file is optional; environment variables take precedence in the
	// config via api_key entries left empty.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "genie: load .env: %v\n", err)
	}

	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "genie: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "genie: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("genie starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry: Prometheus metrics behind /metrics plus span recording.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "genie",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(cfg, providers, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down",
		"wake_phrase", cfg.Wake.Phrase)

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
//
// The "phrase" wake matcher is not registered here: it composes the
// transcriber and is built directly in buildProviders once the STT provider
// exists.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterAudio("portaudio", func(entry config.ProviderEntry) (audio.Source, error) {
		return portaudiosrc.New(), nil
	})

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		return vadenergy.New(), nil
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.StringOption("model_path", "")
		}
		var opts []whisper.Option
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(modelPath, opts...)
	})

	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Engine, error) {
		return piper.New(piper.Config{
			Binary:    entry.StringOption("binary", ""),
			Voice:     entry.StringOption("voice", ""),
			ModelsDir: entry.StringOption("models_dir", ""),
			Speed:     entry.FloatOption("speed", 0),
			Player:    entry.StringOption("player", ""),
		})
	})

	reg.RegisterTTS("espeak", func(entry config.ProviderEntry) (tts.Engine, error) {
		return espeak.New(espeak.Config{
			Binary:         entry.StringOption("binary", ""),
			Voice:          entry.StringOption("voice", ""),
			WordsPerMinute: int(entry.FloatOption("words_per_minute", 0)),
		})
	})

	reg.RegisterCommand("openai", func(entry config.ProviderEntry) (command.Executor, error) {
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		var opts []oaicommand.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaicommand.WithBaseURL(entry.BaseURL))
		}
		if prompt := entry.StringOption("system_prompt", ""); prompt != "" {
			opts = append(opts, oaicommand.WithSystemPrompt(prompt))
		}
		return oaicommand.New(apiKey, entry.Model, opts...)
	})

	reg.RegisterCommand("builtin", func(entry config.ProviderEntry) (command.Executor, error) {
		return builtin.New(), nil
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. Fallback entries are chained behind their primary via circuit
// breakers.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	audioEntry := cfg.Providers.Audio
	if audioEntry.Name == "" {
		audioEntry.Name = "portaudio"
	}
	src, err := reg.CreateAudio(audioEntry)
	if err != nil {
		return nil, fmt.Errorf("create audio provider %q: %w", audioEntry.Name, err)
	}
	ps.Audio = src
	slog.Info("provider created", "kind", "audio", "name", audioEntry.Name)

	vadEntry := cfg.Providers.VAD
	if vadEntry.Name == "" {
		vadEntry.Name = "energy"
	}
	engine, err := reg.CreateVAD(vadEntry)
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", vadEntry.Name, err)
	}
	ps.VAD = engine
	slog.Info("provider created", "kind", "vad", "name", vadEntry.Name)

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = p
		ps.STTName = name
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if err := buildWake(cfg, reg, ps); err != nil {
		return nil, err
	}
	if err := buildTTS(cfg, reg, ps); err != nil {
		return nil, err
	}
	if err := buildCommand(cfg, reg, ps); err != nil {
		return nil, err
	}

	return ps, nil
}

// buildWake constructs the wake matcher. The phrase matcher wraps the STT
// provider; the rest come from the registry.
func buildWake(cfg *config.Config, reg *config.Registry, ps *app.Providers) error {
	entry := cfg.Providers.Wake
	if entry.Name == "" {
		if ps.STT != nil {
			entry.Name = "phrase"
		} else {
			entry.Name = "energy"
		}
	}

	switch entry.Name {
	case "phrase":
		if ps.STT == nil {
			return errors.New("wake provider \"phrase\" requires an stt provider")
		}
		var opts []phrase.Option
		if th := entry.FloatOption("phonetic_threshold", 0); th > 0 {
			opts = append(opts, phrase.WithPhoneticThreshold(th))
		}
		if th := entry.FloatOption("fuzzy_threshold", 0); th > 0 {
			opts = append(opts, phrase.WithFuzzyThreshold(th))
		}
		m, err := phrase.New(ps.STT, cfg.Wake.Phrase, opts...)
		if err != nil {
			return fmt.Errorf("create wake provider %q: %w", entry.Name, err)
		}
		ps.Wake = m

	case "energy":
		m, err := wakeenergy.New(cfg.Wake.Phrase)
		if err != nil {
			return fmt.Errorf("create wake provider %q: %w", entry.Name, err)
		}
		ps.Wake = m

	default:
		m, err := reg.CreateWake(entry)
		if err != nil {
			return fmt.Errorf("create wake provider %q: %w", entry.Name, err)
		}
		ps.Wake = m
	}

	slog.Info("provider created", "kind", "wake", "name", entry.Name)
	return nil
}

// buildTTS constructs the speech output engine, chaining the configured
// fallback behind the primary when one is set.
func buildTTS(cfg *config.Config, reg *config.Registry, ps *app.Providers) error {
	name := cfg.Providers.TTS.Name
	if name == "" {
		return errors.New("providers.tts is required")
	}
	primary, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return fmt.Errorf("create tts provider %q: %w", name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", name)

	if fbName := cfg.Providers.TTSFallback.Name; fbName != "" {
		fb, err := reg.CreateTTS(cfg.Providers.TTSFallback)
		if err != nil {
			return fmt.Errorf("create tts fallback %q: %w", fbName, err)
		}
		chain := resilience.NewTTSFallback(primary, name, resilience.FallbackConfig{})
		chain.AddFallback(fbName, fb)
		ps.TTS = chain
		ps.TTSName = name + "+" + fbName
		slog.Info("provider created", "kind", "tts", "name", fbName, "role", "fallback")
		return nil
	}

	ps.TTS = primary
	ps.TTSName = name
	return nil
}

// buildCommand constructs the command executor, chaining the configured
// fallback behind the primary when one is set.
func buildCommand(cfg *config.Config, reg *config.Registry, ps *app.Providers) error {
	name := cfg.Providers.Command.Name
	if name == "" {
		return nil
	}
	primary, err := reg.CreateCommand(cfg.Providers.Command)
	if err != nil {
		return fmt.Errorf("create command provider %q: %w", name, err)
	}
	slog.Info("provider created", "kind", "command", "name", name)

	if fbName := cfg.Providers.CommandFallback.Name; fbName != "" {
		fb, err := reg.CreateCommand(cfg.Providers.CommandFallback)
		if err != nil {
			return fmt.Errorf("create command fallback %q: %w", fbName, err)
		}
		chain := resilience.NewCommandFallback(primary, name, resilience.FallbackConfig{})
		chain.AddFallback(fbName, fb)
		ps.Command = chain
		ps.CommandName = name + "+" + fbName
		slog.Info("provider created", "kind", "command", "name", fbName, "role", "fallback")
		return nil
	}

	ps.Command = primary
	ps.CommandName = name
	return nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
