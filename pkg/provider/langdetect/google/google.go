// Package google provides a language detector backed by the Google Cloud
// Translation API (v2 detect endpoint).
package google

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/MrWong99/voicerelay/pkg/provider/langdetect"
)

// detectClient is the subset of *translate.Client used by the detector.
type detectClient interface {
	DetectLanguage(ctx context.Context, inputs []string) ([][]translate.Detection, error)
	Close() error
}

// Detector implements langdetect.Detector using Cloud Translation.
type Detector struct {
	client detectClient
}

var _ langdetect.Detector = (*Detector)(nil)

// New creates a Detector. With an empty apiKey the client falls back to
// Application Default Credentials.
func New(ctx context.Context, apiKey string) (*Detector, error) {
	var opts []option.ClientOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	c, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google langdetect: create client: %w", err)
	}
	return &Detector{client: c}, nil
}

// Detect implements langdetect.Detector. The most confident reliable
// detection wins; if none is reliable the most confident one is used.
func (d *Detector) Detect(ctx context.Context, text string) (string, error) {
	res, err := d.client.DetectLanguage(ctx, []string{text})
	if err != nil {
		return "", fmt.Errorf("%w: google: %w", langdetect.ErrDetection, err)
	}
	if len(res) == 0 || len(res[0]) == 0 {
		return langdetect.Undetermined, nil
	}

	best := res[0][0]
	for _, det := range res[0][1:] {
		if (det.IsReliable && !best.IsReliable) || (det.IsReliable == best.IsReliable && det.Confidence > best.Confidence) {
			best = det
		}
	}
	if best.Language == language.Und {
		return langdetect.Undetermined, nil
	}
	return best.Language.String(), nil
}

// Close releases the underlying client.
func (d *Detector) Close() error {
	if d.client == nil {
		return errors.New("google langdetect: not initialised")
	}
	return d.client.Close()
}
