// Package mock provides test doubles for the caption interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voicerelay/pkg/provider/caption"
)

// Captioner is a mock [caption.ImageCaptioner].
type Captioner struct {
	mu sync.Mutex

	// Text is returned when Err is nil.
	Text string

	// Err, if non-nil, is returned by Caption.
	Err error

	// Calls records every image in order.
	Calls []caption.Image
}

// Caption records the call and returns the configured result.
func (c *Captioner) Caption(_ context.Context, img caption.Image) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, img)
	if c.Err != nil {
		return "", c.Err
	}
	return c.Text, nil
}

// CallCount returns the number of Caption calls. Thread-safe.
func (c *Captioner) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Summarizer is a mock [caption.LinkSummarizer].
type Summarizer struct {
	mu sync.Mutex

	// Summaries maps a URL to its summary. Unknown URLs return Err, or an
	// empty string when Err is nil.
	Summaries map[string]string

	// Err is returned for URLs absent from Summaries.
	Err error

	// Calls records every URL in order.
	Calls []string
}

// Summarize records the call and returns the configured result.
func (s *Summarizer) Summarize(_ context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, url)
	if text, ok := s.Summaries[url]; ok {
		return text, nil
	}
	return "", s.Err
}

// CallCount returns the number of Summarize calls. Thread-safe.
func (s *Summarizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

var (
	_ caption.ImageCaptioner = (*Captioner)(nil)
	_ caption.LinkSummarizer = (*Summarizer)(nil)
)
