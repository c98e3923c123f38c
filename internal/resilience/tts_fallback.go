package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voicerelay/pkg/audio"
	"github.com/MrWong99/voicerelay/pkg/provider/tts"
)

var _ tts.Provider = (*TTSFallback)(nil)

// TTSFallback implements [tts.Provider] with failover across several
// synthesis backends.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]

	// OnServed, if set, is called with the provider name after each
	// successful synthesis.
	OnServed func(provider string)
}

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend after those already added.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
}

// Group exposes the underlying group for health reporting.
func (f *TTSFallback) Group() *FallbackGroup[tts.Provider] { return f.group }

// Synthesize tries each healthy backend in order. The returned error wraps
// both [tts.ErrSynthesis] and [ErrAllFailed] when every backend failed.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (audio.Clip, error) {
	clip, name, err := ExecuteWithResult(f.group, func(p tts.Provider) (audio.Clip, error) {
		return p.Synthesize(ctx, req)
	})
	if err != nil {
		if errors.Is(err, tts.ErrSynthesis) || isContextErr(err) {
			return audio.Clip{}, err
		}
		return audio.Clip{}, fmt.Errorf("%w: %w", tts.ErrSynthesis, err)
	}
	if f.OnServed != nil {
		f.OnServed(name)
	}
	return clip, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
