// Package gtranslate provides a keyless TTS provider using the Google
// Translate speech endpoint. It needs no credentials, which makes it the
// usual last entry in a fallback chain.
//
// The endpoint accepts at most about 200 characters per request, so longer
// text is split and the MP3 chunks are concatenated.
package gtranslate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/hegedustibor/htgo-tts/voices"
	"golang.org/x/text/language"

	"github.com/MrWong99/voicerelay/pkg/audio"
	"github.com/MrWong99/voicerelay/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultEndpoint = "https://translate.google.com/translate_tts"
	chunkRunes      = 200
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithEndpoint overrides the speech URL. Used in tests.
func WithEndpoint(u string) Option {
	return func(p *Provider) { p.endpoint = u }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithFallbackLanguage sets the language used when a request carries none.
func WithFallbackLanguage(code string) Option {
	return func(p *Provider) { p.fallback = code }
}

// Provider implements tts.Provider. The request's voice name is ignored; the
// endpoint has one voice per language.
type Provider struct {
	endpoint   string
	httpClient *http.Client
	fallback   string
}

// New creates a Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		fallback:   voices.English,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (audio.Clip, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return audio.Clip{}, fmt.Errorf("%w: gtranslate: empty text", tts.ErrSynthesis)
	}
	lang := p.languageFor(req.LanguageCode)

	var buf bytes.Buffer
	chunks := splitText(text, chunkRunes)
	for i, chunk := range chunks {
		b, err := p.fetch(ctx, chunk, lang, i, len(chunks))
		if err != nil {
			return audio.Clip{}, fmt.Errorf("%w: gtranslate: %w", tts.ErrSynthesis, err)
		}
		buf.Write(b)
	}
	return audio.Clip{Data: buf.Bytes(), Encoding: audio.EncodingMP3}, nil
}

func (p *Provider) fetch(ctx context.Context, text, lang string, idx, total int) ([]byte, error) {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("client", "tw-ob")
	params.Set("q", text)
	params.Set("tl", lang)
	params.Set("total", strconv.Itoa(total))
	params.Set("idx", strconv.Itoa(idx))
	params.Set("textlen", strconv.Itoa(len([]rune(text))))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New("empty response")
	}
	return b, nil
}

// languageFor reduces a locale code to the base language the endpoint
// understands ("sv-SE" → "sv").
func (p *Provider) languageFor(code string) string {
	tag, err := language.Parse(code)
	if err != nil || tag == language.Und {
		return p.fallback
	}
	base, _ := tag.Base()
	return base.String()
}

// splitText cuts text into pieces of at most limit runes, preferring to
// break after whitespace.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if unicode.IsSpace(runes[i-1]) {
				cut = i
				break
			}
		}
		if s := strings.TrimSpace(string(runes[:cut])); s != "" {
			out = append(out, s)
		}
		runes = runes[cut:]
	}
	if s := strings.TrimSpace(string(runes)); s != "" {
		out = append(out, s)
	}
	return out
}
