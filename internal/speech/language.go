package speech

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/MrWong99/voicerelay/pkg/provider/langdetect"
)

// DefaultShortTextThreshold is the character count below which detection is
// skipped and the primary locale assumed.
const DefaultShortTextThreshold = 20

// LanguageSelector chooses the locale for an utterance.
type LanguageSelector struct {
	detector  langdetect.Detector
	catalog   *Catalog
	threshold int
}

// NewLanguageSelector creates a selector. detector may be nil, in which case
// every utterance is treated as a failed detection and gets the primary
// locale. A non-positive threshold falls back to [DefaultShortTextThreshold].
func NewLanguageSelector(detector langdetect.Detector, catalog *Catalog, threshold int) *LanguageSelector {
	if threshold <= 0 {
		threshold = DefaultShortTextThreshold
	}
	return &LanguageSelector{detector: detector, catalog: catalog, threshold: threshold}
}

// Select returns the locale for text.
//
// Short texts get the primary locale without calling the detector. Otherwise
// the detector is called once: a detected tag is matched against the catalog
// (unknown or undetermined languages map to the secondary locale), and a
// detector error falls back to the primary locale.
func (s *LanguageSelector) Select(ctx context.Context, text string) Locale {
	if utf8.RuneCountInString(text) < s.threshold {
		return s.catalog.Primary()
	}
	if s.detector == nil {
		return s.catalog.Primary()
	}

	tag, err := s.detector.Detect(ctx, text)
	if err != nil {
		slog.Debug("speech: language detection failed, using primary locale", "err", err)
		return s.catalog.Primary()
	}
	return s.catalog.Match(tag)
}
