// Package whatlang provides an in-process language detector backed by
// github.com/abadojack/whatlanggo. It needs no network access or credentials.
package whatlang

import (
	"context"
	"fmt"

	"github.com/abadojack/whatlanggo"

	"github.com/MrWong99/voicerelay/pkg/provider/langdetect"
)

// defaultMinConfidence is the confidence below which a result is reported as
// undetermined.
const defaultMinConfidence = 0.5

// Option configures a [Detector].
type Option func(*Detector)

// WithMinConfidence sets the confidence threshold in [0, 1].
func WithMinConfidence(c float64) Option {
	return func(d *Detector) {
		if c >= 0 && c <= 1 {
			d.minConfidence = c
		}
	}
}

// WithWhitelist restricts detection to the given ISO 639-3 language codes
// (e.g. "swe", "eng"). Unknown codes are ignored.
func WithWhitelist(codes ...string) Option {
	return func(d *Detector) {
		wl := make(map[whatlanggo.Lang]bool, len(codes))
		for _, c := range codes {
			if l := whatlanggo.CodeToLang(c); l != -1 {
				wl[l] = true
			}
		}
		if len(wl) > 0 {
			d.opts = whatlanggo.Options{Whitelist: wl}
		}
	}
}

// Detector implements langdetect.Detector with trigram statistics.
type Detector struct {
	minConfidence float64
	opts          whatlanggo.Options
}

var _ langdetect.Detector = (*Detector)(nil)

// New creates a Detector.
func New(opts ...Option) *Detector {
	d := &Detector{minConfidence: defaultMinConfidence}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect implements langdetect.Detector.
func (d *Detector) Detect(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", langdetect.ErrDetection, err)
	}
	info := whatlanggo.DetectWithOptions(text, d.opts)
	if info.Lang == -1 || info.Confidence < d.minConfidence {
		return langdetect.Undetermined, nil
	}
	tag := info.Lang.Iso6391()
	if tag == "" {
		tag = info.Lang.Iso6393()
	}
	if tag == "" {
		return langdetect.Undetermined, nil
	}
	return tag, nil
}
