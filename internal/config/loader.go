package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults] to fields left unset.
const (
	DefaultListenAddr   = ":8717"
	DefaultSampleRate   = 16000
	DefaultFrameSizeMs  = 30
	DefaultQueueDepth   = 64
	DefaultSensitivity  = 0.5
	DefaultMinSpeechMs  = 250
	DefaultMinSilenceMs = 500
	DefaultBufferFrames = 100
	DefaultWakePhrase   = "Hey Genie"
	DefaultWakeResponse = "Yes, Master"
	DefaultTimeoutS     = 30
	DefaultCooldownS    = 5
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"audio":   {"portaudio"},
	"vad":     {"energy"},
	"wake":    {"phrase", "energy"},
	"stt":     {"whisper"},
	"tts":     {"piper", "espeak"},
	"command": {"openai", "builtin"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields of cfg with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.FrameSizeMs == 0 {
		cfg.Audio.FrameSizeMs = DefaultFrameSizeMs
	}
	if cfg.Audio.QueueDepth == 0 {
		cfg.Audio.QueueDepth = DefaultQueueDepth
	}
	if cfg.VAD.Sensitivity == 0 {
		cfg.VAD.Sensitivity = DefaultSensitivity
	}
	if cfg.VAD.MinSpeechMs == 0 {
		cfg.VAD.MinSpeechMs = DefaultMinSpeechMs
	}
	if cfg.VAD.MinSilenceMs == 0 {
		cfg.VAD.MinSilenceMs = DefaultMinSilenceMs
	}
	if cfg.VAD.BufferFrames == 0 {
		cfg.VAD.BufferFrames = DefaultBufferFrames
	}
	if cfg.Wake.Phrase == "" {
		cfg.Wake.Phrase = DefaultWakePhrase
	}
	if cfg.Wake.Response == "" {
		cfg.Wake.Response = DefaultWakeResponse
	}
	if cfg.Session.TimeoutS == 0 {
		cfg.Session.TimeoutS = DefaultTimeoutS
	}
	if cfg.Session.ErrorCooldownS == 0 {
		cfg.Session.ErrorCooldownS = DefaultCooldownS
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is too low; 16000 is recommended for speech", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSizeMs < 10 || cfg.Audio.FrameSizeMs > 100 {
		errs = append(errs, fmt.Errorf("audio.frame_size_ms %d is out of range [10, 100]", cfg.Audio.FrameSizeMs))
	}
	if cfg.Audio.QueueDepth < 0 {
		errs = append(errs, fmt.Errorf("audio.queue_depth must not be negative, got %d", cfg.Audio.QueueDepth))
	}

	if cfg.VAD.Sensitivity < 0 || cfg.VAD.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("vad.sensitivity %.2f is out of range [0, 1]", cfg.VAD.Sensitivity))
	}
	if cfg.VAD.MinSpeechMs < 0 {
		errs = append(errs, fmt.Errorf("vad.min_speech_ms must not be negative, got %d", cfg.VAD.MinSpeechMs))
	}
	if cfg.VAD.MinSilenceMs < 0 {
		errs = append(errs, fmt.Errorf("vad.min_silence_ms must not be negative, got %d", cfg.VAD.MinSilenceMs))
	}
	if cfg.VAD.BufferFrames < 0 {
		errs = append(errs, fmt.Errorf("vad.buffer_frames must not be negative, got %d", cfg.VAD.BufferFrames))
	}

	if cfg.Session.TimeoutS <= 0 {
		errs = append(errs, fmt.Errorf("session.timeout_s must be positive, got %d", cfg.Session.TimeoutS))
	}
	if cfg.Session.ErrorCooldownS <= 0 {
		errs = append(errs, fmt.Errorf("session.error_cooldown_s must be positive, got %d", cfg.Session.ErrorCooldownS))
	}

	validateProviderName("audio", cfg.Providers.Audio.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("wake", cfg.Providers.Wake.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("tts", cfg.Providers.TTSFallback.Name)
	validateProviderName("command", cfg.Providers.Command.Name)
	validateProviderName("command", cfg.Providers.CommandFallback.Name)

	if cfg.Providers.Wake.Name == "phrase" && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.wake: the phrase matcher requires providers.stt to be configured"))
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; wake acknowledgements and replies will not be spoken")
	}
	if cfg.Providers.Command.Name == "" && cfg.Providers.CommandFallback.Name != "" {
		errs = append(errs, errors.New("providers.command_fallback is set but providers.command is not"))
	}
	if cfg.Providers.TTS.Name == "" && cfg.Providers.TTSFallback.Name != "" {
		errs = append(errs, errors.New("providers.tts_fallback is set but providers.tts is not"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
