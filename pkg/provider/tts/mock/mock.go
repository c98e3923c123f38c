// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Clip: audio.Clip{Data: pcm, Format: audio.Format{SampleRate: 48000, Channels: 2}}}
//	clip, _ := p.Synthesize(ctx, tts.Request{Text: "hej"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicerelay/pkg/audio"
	"github.com/MrWong99/voicerelay/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by Synthesize when Err is nil and SynthesizeFunc is unset.
	Clip audio.Clip

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// SynthesizeFunc, if set, overrides Clip and Err.
	SynthesizeFunc func(ctx context.Context, req tts.Request) (audio.Clip, error)

	// Calls records every request in order.
	Calls []tts.Request
}

// Synthesize records the call and returns the configured result.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (audio.Clip, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	fn, clip, err := p.SynthesizeFunc, p.Clip, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return audio.Clip{}, err
	}
	return clip, nil
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Requests returns a copy of the recorded requests. Thread-safe.
func (p *Provider) Requests() []tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]tts.Request(nil), p.Calls...)
}

var _ tts.Provider = (*Provider)(nil)
