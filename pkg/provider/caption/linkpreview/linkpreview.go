// Package linkpreview summarises links by reading the page's own metadata:
// the OpenGraph title and description, falling back to <title> and the
// description meta tag.
package linkpreview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/MrWong99/voicerelay/pkg/provider/caption"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultMaxBytes = 1 << 20
	defaultMaxRunes = 200
	userAgent       = "voicerelay-linkpreview/1.0"
)

// Summarizer implements [caption.LinkSummarizer].
type Summarizer struct {
	client   *http.Client
	maxBytes int64
	maxRunes int
}

// Option configures a [Summarizer].
type Option func(*Summarizer)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Summarizer) { s.client = c }
}

// WithMaxRunes caps the length of the returned summary.
func WithMaxRunes(n int) Option {
	return func(s *Summarizer) { s.maxRunes = n }
}

// New returns a [Summarizer].
func New(opts ...Option) *Summarizer {
	s := &Summarizer{
		client:   &http.Client{Timeout: defaultTimeout},
		maxBytes: defaultMaxBytes,
		maxRunes: defaultMaxRunes,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Summarize fetches rawURL and returns "<title>. <description>", trimmed to
// the configured length.
func (s *Summarizer) Summarize(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: linkpreview: invalid url %q", caption.ErrCaption, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: linkpreview: %w", caption.ErrCaption, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: linkpreview: fetch: %w", caption.ErrCaption, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: linkpreview: unexpected status %s", caption.ErrCaption, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", fmt.Errorf("%w: linkpreview: not an html page (%s)", caption.ErrCaption, ct)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return "", fmt.Errorf("%w: linkpreview: parse: %w", caption.ErrCaption, err)
	}

	title := firstNonEmpty(meta(doc, "og:title"), doc.Find("title").First().Text())
	desc := firstNonEmpty(meta(doc, "og:description"), meta(doc, "description"))
	summary := join(clean(title), clean(desc))
	if summary == "" {
		return "", fmt.Errorf("%w: linkpreview: page has no title or description", caption.ErrCaption)
	}
	return truncate(summary, s.maxRunes), nil
}

// meta returns the content of a <meta> tag matched by property or name.
func meta(doc *goquery.Document, key string) string {
	sel := doc.Find(fmt.Sprintf(`meta[property=%q], meta[name=%q]`, key, key)).First()
	v, _ := sel.Attr("content")
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func join(title, desc string) string {
	switch {
	case title == "":
		return desc
	case desc == "" || strings.EqualFold(title, desc):
		return title
	}
	if !strings.HasSuffix(title, ".") && !strings.HasSuffix(title, "!") && !strings.HasSuffix(title, "?") {
		title += "."
	}
	return title + " " + desc
}

// truncate cuts s at the last word boundary within max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	cut := string(r[:max])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

var _ caption.LinkSummarizer = (*Summarizer)(nil)
