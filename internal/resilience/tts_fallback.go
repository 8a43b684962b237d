package resilience

import (
	"context"
	"errors"

	"github.com/genievoice/genie/pkg/provider/tts"
)

// TTSFallback implements [tts.Engine] with automatic failover across
// multiple synthesis backends — typically a neural engine first and a
// formant one behind it. Each backend has its own circuit breaker.
type TTSFallback struct {
	chain *FallbackChain[tts.Engine]
}

// Compile-time interface assertion.
var _ tts.Engine = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Engine, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		chain: NewFallbackChain(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS engine as a fallback.
func (f *TTSFallback) AddFallback(name string, engine tts.Engine) {
	f.chain.Add(name, engine)
}

// Names returns the engine names in try order.
func (f *TTSFallback) Names() []string { return f.chain.Names() }

// Speak synthesises and plays text via the first healthy engine.
func (f *TTSFallback) Speak(ctx context.Context, text string) error {
	return f.chain.Execute(func(e tts.Engine) error {
		return e.Speak(ctx, text)
	})
}

// Close closes every engine in the chain, joining any errors.
func (f *TTSFallback) Close() error {
	var errs []error
	for i := range f.chain.entries {
		if err := f.chain.entries[i].value.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
