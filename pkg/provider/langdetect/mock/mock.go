// Package mock provides a test double for the langdetect.Detector interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicerelay/pkg/provider/langdetect"
)

// DetectCall records a single invocation of Detect.
type DetectCall struct {
	// Text is the text passed to Detect.
	Text string
}

// Detector is a mock implementation of langdetect.Detector.
type Detector struct {
	mu sync.Mutex

	// Tag is returned by Detect when Err is nil.
	Tag string

	// Err, if non-nil, is returned by Detect.
	Err error

	// Calls records every call to Detect in order.
	Calls []DetectCall
}

// Detect records the call and returns Tag, Err.
func (d *Detector) Detect(_ context.Context, text string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, DetectCall{Text: text})
	if d.Err != nil {
		return "", d.Err
	}
	return d.Tag, nil
}

// CallCount returns the number of Detect calls. Thread-safe.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Calls)
}

var _ langdetect.Detector = (*Detector)(nil)
