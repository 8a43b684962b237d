// Package piper implements the tts.Engine interface by shelling out to the
// Piper neural TTS binary. Text is piped to piper's stdin, synthesised into
// a temporary WAV file, and played through a system audio player.
//
// Piper voices are ONNX models identified by name (e.g. "en_US-lessac-medium")
// with a model file <name>.onnx and a config <name>.onnx.json side by side in
// the models directory.
package piper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/genievoice/genie/pkg/provider/tts"
)

var _ tts.Engine = (*Engine)(nil)

// Config controls where the piper binary and voice models are found and how
// synthesis behaves.
type Config struct {
	// Binary is the path to the piper executable. When empty, "piper" is
	// resolved via PATH.
	Binary string

	// Voice is the voice model name, e.g. "en_US-lessac-medium".
	Voice string

	// ModelsDir is the directory holding <Voice>.onnx and <Voice>.onnx.json.
	ModelsDir string

	// Speed is the speech rate multiplier in [0.5, 2.0]. Zero means 1.0.
	Speed float64

	// Player is the playback command for the synthesised WAV file. When
	// empty, the first of aplay, paplay, afplay found on PATH is used.
	Player string
}

// Validate reports all problems with the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Voice == "" {
		errs = append(errs, errors.New("voice must not be empty"))
	}
	if c.ModelsDir == "" {
		errs = append(errs, errors.New("models dir must not be empty"))
	}
	if c.Speed != 0 && (c.Speed < 0.5 || c.Speed > 2.0) {
		errs = append(errs, fmt.Errorf("speed %v outside [0.5, 2.0]", c.Speed))
	}
	return errors.Join(errs...)
}

// Engine implements tts.Engine via piper subprocess invocations. The engine
// holds no per-call state and is safe for concurrent use.
type Engine struct {
	binary     string
	player     string
	modelPath  string
	configPath string
	speed      float64
}

// New resolves the piper binary, the voice model files and an audio player.
// It fails fast when any of them is missing so a misconfigured deployment is
// caught at startup rather than on the first spoken response.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("piper: invalid config: %w", err)
	}

	binary := cfg.Binary
	if binary == "" {
		binary = "piper"
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("piper: executable %q not found: %w", binary, err)
	}

	modelPath := filepath.Join(cfg.ModelsDir, cfg.Voice+".onnx")
	configPath := filepath.Join(cfg.ModelsDir, cfg.Voice+".onnx.json")
	for _, p := range []string{modelPath, configPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("piper: voice model file %q: %w", p, err)
		}
	}

	player := cfg.Player
	if player == "" {
		player, err = findPlayer()
		if err != nil {
			return nil, fmt.Errorf("piper: %w", err)
		}
	}

	speed := cfg.Speed
	if speed == 0 {
		speed = 1.0
	}

	return &Engine{
		binary:     resolved,
		player:     player,
		modelPath:  modelPath,
		configPath: configPath,
		speed:      speed,
	}, nil
}

// Speak synthesises text into a temporary WAV file and plays it. The file is
// removed afterwards regardless of playback outcome.
func (e *Engine) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tmp, err := os.CreateTemp("", "piper-*.wav")
	if err != nil {
		return fmt.Errorf("piper: create temp file: %w", err)
	}
	wavPath := tmp.Name()
	tmp.Close()
	defer os.Remove(wavPath)

	args := []string{
		"--model", e.modelPath,
		"--config", e.configPath,
		"--output-file", wavPath,
	}
	if e.speed != 1.0 {
		args = append(args, "--length-scale", strconv.FormatFloat(1.0/e.speed, 'f', 3, 64))
	}

	synth := exec.CommandContext(ctx, e.binary, args...)
	synth.Stdin = strings.NewReader(text)
	if out, err := synth.CombinedOutput(); err != nil {
		return fmt.Errorf("piper: synthesis failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	play := exec.CommandContext(ctx, e.player, wavPath)
	if out, err := play.CombinedOutput(); err != nil {
		return fmt.Errorf("piper: playback via %s failed: %w: %s", e.player, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Close is a no-op: every Speak call spawns and reaps its own processes.
func (e *Engine) Close() error { return nil }

// findPlayer returns the first system audio player available on PATH.
func findPlayer() (string, error) {
	for _, p := range []string{"aplay", "paplay", "afplay"} {
		if resolved, err := exec.LookPath(p); err == nil {
			return resolved, nil
		}
	}
	return "", errors.New("no audio player found on PATH (tried aplay, paplay, afplay)")
}
