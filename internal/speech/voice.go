package speech

import (
	"maps"
	"sync"
)

// Voice is the synthesis selection for one utterance.
type Voice struct {
	// LanguageCode is the locale code, e.g. "sv-SE".
	LanguageCode string

	// Name is the provider voice name, e.g. "sv-SE-Wavenet-C".
	Name string
}

// VoiceResolver maps speakers to voices.
//
// Per-speaker voices only apply to the primary locale; any other locale
// always uses that locale's own voice so the voice matches the language.
//
// VoiceResolver is safe for concurrent use; [VoiceResolver.SetVoices] may be
// called from a config reload while the worker resolves.
type VoiceResolver struct {
	catalog *Catalog

	mu     sync.RWMutex
	voices map[string]string
}

// NewVoiceResolver creates a resolver over catalog with the given
// speakerID → voice name mapping. voices may be nil.
func NewVoiceResolver(catalog *Catalog, voices map[string]string) *VoiceResolver {
	r := &VoiceResolver{catalog: catalog}
	r.SetVoices(voices)
	return r
}

// SetVoices replaces the per-speaker mapping.
func (r *VoiceResolver) SetVoices(voices map[string]string) {
	cp := make(map[string]string, len(voices))
	maps.Copy(cp, voices)
	r.mu.Lock()
	r.voices = cp
	r.mu.Unlock()
}

// Resolve returns the voice for speakerID speaking in loc. It never fails.
func (r *VoiceResolver) Resolve(speakerID string, loc Locale) Voice {
	if !r.catalog.IsPrimary(loc) {
		return Voice{LanguageCode: loc.Code, Name: loc.Voice}
	}

	r.mu.RLock()
	name, ok := r.voices[speakerID]
	r.mu.RUnlock()
	if !ok || name == "" {
		name = loc.Voice
	}
	return Voice{LanguageCode: loc.Code, Name: name}
}
