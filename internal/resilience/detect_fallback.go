package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voicerelay/pkg/provider/langdetect"
)

var _ langdetect.Detector = (*DetectFallback)(nil)

// DetectFallback implements [langdetect.Detector] over several detectors,
// typically a remote service backed by a local statistical model.
type DetectFallback struct {
	group *FallbackGroup[langdetect.Detector]
}

// NewDetectFallback creates a [DetectFallback] with primary preferred.
func NewDetectFallback(primary langdetect.Detector, primaryName string, cfg FallbackConfig) *DetectFallback {
	return &DetectFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another detector.
func (f *DetectFallback) AddFallback(name string, d langdetect.Detector) {
	f.group.AddFallback(name, d)
}

// Group exposes the underlying group for health reporting.
func (f *DetectFallback) Group() *FallbackGroup[langdetect.Detector] { return f.group }

// Detect returns the first successful detection. An undetermined result is a
// success and does not fall through.
func (f *DetectFallback) Detect(ctx context.Context, text string) (string, error) {
	tag, _, err := ExecuteWithResult(f.group, func(d langdetect.Detector) (string, error) {
		return d.Detect(ctx, text)
	})
	if err != nil && !errors.Is(err, langdetect.ErrDetection) {
		return "", fmt.Errorf("%w: %w", langdetect.ErrDetection, err)
	}
	return tag, err
}
