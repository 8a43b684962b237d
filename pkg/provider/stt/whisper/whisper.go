// Package whisper implements the stt.Transcriber interface using the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all calls.
// Each Transcribe call creates a fresh whisper context: contexts are not
// thread-safe, but the model is, so concurrent transcriptions are fine.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/genievoice/genie/pkg/audio"
	"github.com/genievoice/genie/pkg/provider/stt"
)

const defaultLanguage = "en"

// Option is a functional option for configuring a [Transcriber].
type Option func(*Transcriber)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// Transcriber implements stt.Transcriber on top of a loaded whisper.cpp
// model. Safe for concurrent use.
type Transcriber struct {
	language string

	mu     sync.Mutex
	model  whisperlib.Model
	closed bool
}

// New creates a Transcriber that loads the whisper.cpp model from the given
// file path. The caller must call Close when the transcriber is no longer
// needed.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	t := &Transcriber{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe runs whisper.cpp inference over the segment's PCM audio and
// returns the concatenated text of all recognised segments.
func (t *Transcriber) Transcribe(ctx context.Context, seg *audio.SpeechSegment) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	if seg == nil || len(seg.Frames) == 0 {
		return stt.Transcript{}, errors.New("whisper: empty segment")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return stt.Transcript{}, errors.New("whisper: transcriber is closed")
	}
	model := t.model
	t.mu.Unlock()

	samples := pcmToFloat32(seg.PCM())

	wctx, err := model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(t.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", t.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return stt.Transcript{
		Text:     strings.Join(parts, " "),
		Duration: seg.End.Sub(seg.Start),
	}, nil
}

// Close releases the whisper model. Transcribe calls made after Close fail.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.model.Close()
}

var _ stt.Transcriber = (*Transcriber)(nil)
