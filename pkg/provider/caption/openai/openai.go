// Package openai provides an image captioner backed by an OpenAI-compatible
// vision chat model.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/voicerelay/pkg/provider/caption"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 120
)

// Captioner implements [caption.ImageCaptioner] with the chat completions API.
type Captioner struct {
	client    oai.Client
	model     string
	maxTokens int64
}

type config struct {
	baseURL    string
	model      string
	timeout    time.Duration
	maxTokens  int64
	maxRetries int
}

// Option is a functional option for [Captioner].
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel selects the vision-capable chat model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxTokens caps the length of the generated caption.
func WithMaxTokens(n int) Option {
	return func(c *config) { c.maxTokens = int64(n) }
}

// WithMaxRetries sets how often the client retries transient failures.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// New constructs a [Captioner].
func New(apiKey string, opts ...Option) (*Captioner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel, maxTokens: defaultMaxTokens, maxRetries: 2}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Captioner{
		client:    oai.NewClient(reqOpts...),
		model:     cfg.model,
		maxTokens: cfg.maxTokens,
	}, nil
}

// Caption implements [caption.ImageCaptioner].
func (c *Captioner) Caption(ctx context.Context, img caption.Image) (string, error) {
	if img.URL == "" {
		return "", fmt.Errorf("%w: openai: empty image url", caption.ErrCaption)
	}

	parts := []oai.ChatCompletionContentPartUnionParam{
		oai.TextContentPart(prompt(img.LanguageCode)),
		oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
			URL:    img.URL,
			Detail: "low",
		}),
	}
	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.model),
		Messages:            []oai.ChatCompletionMessageParamUnion{oai.UserMessage(parts)},
		MaxCompletionTokens: oai.Int(c.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("%w: openai: %w", caption.ErrCaption, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai: no choices in response", caption.ErrCaption)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: openai: empty caption", caption.ErrCaption)
	}
	return text, nil
}

// prompt asks for a caption suited to being read aloud.
func prompt(languageCode string) string {
	lang := "the same language the chat uses"
	switch {
	case strings.HasPrefix(languageCode, "sv"):
		lang = "Swedish"
	case strings.HasPrefix(languageCode, "en"):
		lang = "English"
	case languageCode != "":
		lang = "the language with code " + languageCode
	}
	return "Describe this image in one or two short sentences in " + lang +
		". The text will be read aloud, so do not use lists, markdown or emoji."
}

var _ caption.ImageCaptioner = (*Captioner)(nil)
