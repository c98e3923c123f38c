// Package caption defines the interfaces for turning non-text chat content
// into short speakable descriptions.
//
// Two kinds of content are supported: image attachments, described by an
// [ImageCaptioner], and links, summarised by a [LinkSummarizer]. Both are
// optional for the relay; ingestion falls back to plain text rules when no
// provider is configured.
package caption

import (
	"context"
	"errors"
)

// ErrCaption is wrapped by every error returned from a provider in this
// package.
var ErrCaption = errors.New("caption: failed")

// Image is an attachment to describe.
type Image struct {
	// URL is a publicly fetchable location of the image.
	URL string

	// ContentType is the MIME type reported by the chat platform, if any.
	ContentType string

	// LanguageCode is the locale the description should be written in,
	// e.g. "sv-SE". Empty lets the provider choose.
	LanguageCode string
}

// ImageCaptioner produces a one or two sentence description of an image.
type ImageCaptioner interface {
	Caption(ctx context.Context, img Image) (string, error)
}

// LinkSummarizer produces a short spoken summary of the page behind url.
type LinkSummarizer interface {
	Summarize(ctx context.Context, url string) (string, error)
}
