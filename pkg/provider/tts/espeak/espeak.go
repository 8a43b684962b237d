// Package espeak implements the tts.Engine interface by shelling out to the
// eSpeak NG formant synthesiser. Quality is robotic but the binary is
// ubiquitous and synthesis is near-instant, which makes it the natural
// fallback when a neural engine is unavailable.
package espeak

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/genievoice/genie/pkg/provider/tts"
)

var _ tts.Engine = (*Engine)(nil)

// Config controls the espeak invocation.
type Config struct {
	// Binary is the path to the espeak executable. When empty, "espeak-ng"
	// then "espeak" are resolved via PATH.
	Binary string

	// Voice is the espeak voice identifier, e.g. "en-us". Empty uses the
	// binary's default.
	Voice string

	// WordsPerMinute sets the speech rate. Zero uses the binary's default.
	WordsPerMinute int
}

// Engine implements tts.Engine via espeak subprocess invocations. Safe for
// concurrent use.
type Engine struct {
	binary string
	voice  string
	wpm    int
}

// New resolves the espeak binary and fails when none is installed.
func New(cfg Config) (*Engine, error) {
	candidates := []string{cfg.Binary}
	if cfg.Binary == "" {
		candidates = []string{"espeak-ng", "espeak"}
	}
	var (
		resolved string
		err      error
	)
	for _, c := range candidates {
		if resolved, err = exec.LookPath(c); err == nil {
			break
		}
	}
	if resolved == "" {
		return nil, fmt.Errorf("espeak: no executable found (tried %s): %w", strings.Join(candidates, ", "), err)
	}
	if cfg.WordsPerMinute < 0 {
		return nil, fmt.Errorf("espeak: words per minute must not be negative")
	}
	return &Engine{binary: resolved, voice: cfg.Voice, wpm: cfg.WordsPerMinute}, nil
}

// Speak synthesises and plays text directly through espeak's own audio
// output, blocking until playback completes.
func (e *Engine) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var args []string
	if e.voice != "" {
		args = append(args, "-v", e.voice)
	}
	if e.wpm > 0 {
		args = append(args, "-s", strconv.Itoa(e.wpm))
	}
	args = append(args, "--", text)

	cmd := exec.CommandContext(ctx, e.binary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("espeak: speak failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Close is a no-op: every Speak call spawns and reaps its own process.
func (e *Engine) Close() error { return nil }
