package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/genievoice/genie/pkg/audio"
	"github.com/genievoice/genie/pkg/provider/command"
	"github.com/genievoice/genie/pkg/provider/stt"
	"github.com/genievoice/genie/pkg/provider/tts"
	"github.com/genievoice/genie/pkg/provider/vad"
	"github.com/genievoice/genie/pkg/provider/wake"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	audio   map[string]func(ProviderEntry) (audio.Source, error)
	vad     map[string]func(ProviderEntry) (vad.Engine, error)
	wake    map[string]func(ProviderEntry) (wake.SegmentMatcher, error)
	stt     map[string]func(ProviderEntry) (stt.Transcriber, error)
	tts     map[string]func(ProviderEntry) (tts.Engine, error)
	command map[string]func(ProviderEntry) (command.Executor, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		audio:   make(map[string]func(ProviderEntry) (audio.Source, error)),
		vad:     make(map[string]func(ProviderEntry) (vad.Engine, error)),
		wake:    make(map[string]func(ProviderEntry) (wake.SegmentMatcher, error)),
		stt:     make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		tts:     make(map[string]func(ProviderEntry) (tts.Engine, error)),
		command: make(map[string]func(ProviderEntry) (command.Executor, error)),
	}
}

// RegisterAudio registers a capture source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterAudio(name string, factory func(ProviderEntry) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// RegisterVAD registers a classifier engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterWake registers a wake matcher factory under name.
func (r *Registry) RegisterWake(name string, factory func(ProviderEntry) (wake.SegmentMatcher, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wake[name] = factory
}

// RegisterSTT registers a transcriber factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a speech synthesis engine factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterCommand registers a command executor factory under name.
func (r *Registry) RegisterCommand(name string, factory func(ProviderEntry) (command.Executor, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.command[name] = factory
}

// CreateAudio instantiates a capture source using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.audio[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVAD instantiates a classifier engine using the factory registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateWake instantiates a wake matcher using the factory registered under entry.Name.
func (r *Registry) CreateWake(entry ProviderEntry) (wake.SegmentMatcher, error) {
	r.mu.RLock()
	factory, ok := r.wake[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: wake/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates a transcriber using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a speech synthesis engine using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Engine, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateCommand instantiates a command executor using the factory registered under entry.Name.
func (r *Registry) CreateCommand(entry ProviderEntry) (command.Executor, error) {
	r.mu.RLock()
	factory, ok := r.command[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: command/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
