// Package tts defines the Provider interface for text-to-speech backends.
//
// A provider turns one finished utterance into one complete audio clip. The
// relay never streams partial text, so the interface is request/response:
// the clip is decoded and played only after synthesis succeeds.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/voicerelay/pkg/audio"
)

// ErrSynthesis is wrapped by every error a provider returns from
// [Provider.Synthesize].
var ErrSynthesis = errors.New("tts: synthesis failed")

// Request describes one synthesis call.
type Request struct {
	// Text is the final text to speak, already formatted.
	Text string

	// LanguageCode is the locale code, e.g. "sv-SE".
	LanguageCode string

	// Voice is the voice name resolved for the speaker, e.g. "sv-SE-Wavenet-C".
	// Providers that use their own voice ids map or ignore it.
	Voice string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize returns the audio for req. Errors wrap [ErrSynthesis].
	Synthesize(ctx context.Context, req Request) (audio.Clip, error)
}
