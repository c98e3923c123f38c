package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/voicerelay/pkg/provider/caption"
	"github.com/MrWong99/voicerelay/pkg/provider/langdetect"
	"github.com/MrWong99/voicerelay/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	tts        map[string]func(ProviderEntry) (tts.Provider, error)
	detectors  map[string]func(ProviderEntry) (langdetect.Detector, error)
	captioners map[string]func(ProviderEntry) (caption.ImageCaptioner, error)
	summarizer map[string]func(ProviderEntry) (caption.LinkSummarizer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		tts:        make(map[string]func(ProviderEntry) (tts.Provider, error)),
		detectors:  make(map[string]func(ProviderEntry) (langdetect.Detector, error)),
		captioners: make(map[string]func(ProviderEntry) (caption.ImageCaptioner, error)),
		summarizer: make(map[string]func(ProviderEntry) (caption.LinkSummarizer, error)),
	}
}

// RegisterTTS registers a TTS provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterDetector registers a language detector factory under name.
func (r *Registry) RegisterDetector(name string, factory func(ProviderEntry) (langdetect.Detector, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors[name] = factory
}

// RegisterCaptioner registers an image captioner factory under name.
func (r *Registry) RegisterCaptioner(name string, factory func(ProviderEntry) (caption.ImageCaptioner, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captioners[name] = factory
}

// RegisterLinkSummarizer registers a link summarizer factory under name.
func (r *Registry) RegisterLinkSummarizer(name string, factory func(ProviderEntry) (caption.LinkSummarizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summarizer[name] = factory
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, r.tts, "tts", entry)
}

// CreateDetector instantiates a language detector using the factory registered under entry.Name.
func (r *Registry) CreateDetector(entry ProviderEntry) (langdetect.Detector, error) {
	return create(r, r.detectors, "langdetect", entry)
}

// CreateCaptioner instantiates an image captioner using the factory registered under entry.Name.
func (r *Registry) CreateCaptioner(entry ProviderEntry) (caption.ImageCaptioner, error) {
	return create(r, r.captioners, "caption", entry)
}

// CreateLinkSummarizer instantiates a link summarizer using the factory registered under entry.Name.
func (r *Registry) CreateLinkSummarizer(entry ProviderEntry) (caption.LinkSummarizer, error) {
	return create(r, r.summarizer, "link_preview", entry)
}

func create[T any](r *Registry, factories map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}
