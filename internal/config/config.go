// Package config provides the configuration schema, loader, and provider
// registry for the Genie voice pipeline.
package config

import "time"

// LogLevel controls log verbosity for the Genie server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Genie.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Wake      WakeConfig      `yaml:"wake"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and logging settings for the Genie server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8717").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds capture stream settings.
type AudioConfig struct {
	// SampleRate is the capture sample rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameSizeMs is the duration of each captured frame in milliseconds.
	// Default: 30.
	FrameSizeMs int `yaml:"frame_size_ms"`

	// QueueDepth bounds the frame queue between capture and segmentation.
	// Under sustained backpressure the oldest frame is dropped. Default: 64.
	QueueDepth int `yaml:"queue_depth"`
}

// VADConfig holds voice-activity segmentation settings.
type VADConfig struct {
	// Sensitivity selects how eagerly frames are classified as speech, in
	// [0, 1]. Higher values detect quieter speech. The classifier threshold
	// is derived as 1 - sensitivity. Default: 0.5.
	Sensitivity float64 `yaml:"sensitivity"`

	// MinSpeechMs is the minimum voiced duration for a segment to be kept.
	// Default: 250.
	MinSpeechMs int `yaml:"min_speech_ms"`

	// MinSilenceMs is the trailing silence that confirms a segment boundary.
	// Default: 500.
	MinSilenceMs int `yaml:"min_silence_ms"`

	// BufferFrames bounds the per-segment frame buffer. Default: 100.
	BufferFrames int `yaml:"buffer_frames"`
}

// minThreshold is the floor for the derived classifier threshold. Maximum
// sensitivity must still produce a positive threshold: a literal zero would
// be indistinguishable from "unset" downstream and silently replaced with
// the default.
const minThreshold = 0.01

// Threshold derives the classifier speech threshold from Sensitivity,
// clamped to [minThreshold, 1].
func (c VADConfig) Threshold() float64 {
	t := 1 - c.Sensitivity
	if t < minThreshold {
		return minThreshold
	}
	return t
}

// MinSpeech returns MinSpeechMs as a duration.
func (c VADConfig) MinSpeech() time.Duration {
	return time.Duration(c.MinSpeechMs) * time.Millisecond
}

// MinSilence returns MinSilenceMs as a duration.
func (c VADConfig) MinSilence() time.Duration {
	return time.Duration(c.MinSilenceMs) * time.Millisecond
}

// WakeConfig holds the wake phrase and spoken acknowledgement.
type WakeConfig struct {
	// Phrase is the phrase that opens a command session. Default: "Hey Genie".
	Phrase string `yaml:"phrase"`

	// Response is spoken when the wake phrase is accepted.
	// Default: "Yes, Master".
	Response string `yaml:"response"`
}

// SessionConfig holds the command-session timing parameters.
type SessionConfig struct {
	// TimeoutS bounds how long a command session waits for voiced activity,
	// in seconds. Default: 30.
	TimeoutS int `yaml:"timeout_s"`

	// ErrorCooldownS is how long the pipeline stays in the error phase after
	// a capability failure, in seconds. Default: 5.
	ErrorCooldownS int `yaml:"error_cooldown_s"`
}

// Timeout returns TimeoutS as a duration.
func (c SessionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutS) * time.Second
}

// ErrorCooldown returns ErrorCooldownS as a duration.
func (c SessionConfig) ErrorCooldown() time.Duration {
	return time.Duration(c.ErrorCooldownS) * time.Second
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry]. The *Fallback entries, when set, are chained behind the primary
// via a circuit breaker.
type ProvidersConfig struct {
	Audio           ProviderEntry `yaml:"audio"`
	VAD             ProviderEntry `yaml:"vad"`
	Wake            ProviderEntry `yaml:"wake"`
	STT             ProviderEntry `yaml:"stt"`
	TTS             ProviderEntry `yaml:"tts"`
	TTSFallback     ProviderEntry `yaml:"tts_fallback"`
	Command         ProviderEntry `yaml:"command"`
	CommandFallback ProviderEntry `yaml:"command_fallback"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper",
	// "piper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini",
	// or a path to a local model file).
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or
	// nested maps.
	Options map[string]any `yaml:"options"`
}

// StringOption returns the named option as a string, or def when absent or
// not a string.
func (e ProviderEntry) StringOption(key, def string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return def
}

// FloatOption returns the named option as a float64, or def when absent.
// Integer YAML values are accepted.
func (e ProviderEntry) FloatOption(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}
