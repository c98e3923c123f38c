// Package langdetect defines the Detector interface for language
// identification backends.
//
// A detector reports the language of a piece of text as a BCP 47 tag. The
// relay calls it at most once per utterance and maps the tag onto its own
// locale buckets, so detectors do not need to know which languages the relay
// supports.
//
// Implementations must be safe for concurrent use.
package langdetect

import (
	"context"
	"errors"
)

// Undetermined is the tag returned when a detector ran successfully but could
// not identify the language.
const Undetermined = "und"

// ErrDetection wraps every backend failure. Callers treat it as "detection
// did not happen", which is distinct from an [Undetermined] result.
var ErrDetection = errors.New("langdetect: detection failed")

// Detector identifies the language of text.
type Detector interface {
	// Detect returns a BCP 47 language tag for text, or [Undetermined] if the
	// language could not be identified. A non-nil error wraps [ErrDetection]
	// and means the backend itself failed.
	Detect(ctx context.Context, text string) (string, error)
}
