// Package google provides a TTS provider backed by Google Cloud
// Text-to-Speech. Clips are requested as MP3 with a neutral voice gender.
package google

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/MrWong99/voicerelay/pkg/audio"
	"github.com/MrWong99/voicerelay/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// synthesizer is the subset of *texttospeech.Client used by Provider.
type synthesizer interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithSpeakingRate sets the speaking rate (0.25 to 4.0, 1.0 is normal).
func WithSpeakingRate(rate float64) Option {
	return func(p *Provider) { p.speakingRate = rate }
}

// Provider implements tts.Provider using Cloud Text-to-Speech.
type Provider struct {
	client       synthesizer
	speakingRate float64
}

// New creates a Provider. With an empty credentialsFile the client uses
// Application Default Credentials.
func New(ctx context.Context, credentialsFile string, opts ...Option) (*Provider, error) {
	var copts []option.ClientOption
	if credentialsFile != "" {
		copts = append(copts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := texttospeech.NewClient(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("google tts: create client: %w", err)
	}
	return newWithClient(c, opts...), nil
}

func newWithClient(c synthesizer, opts ...Option) *Provider {
	p := &Provider{client: c}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (audio.Clip, error) {
	resp, err := p.client.SynthesizeSpeech(ctx, buildRequest(req, p.speakingRate))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: google: %w", tts.ErrSynthesis, err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return audio.Clip{}, fmt.Errorf("%w: google: empty audio content", tts.ErrSynthesis)
	}
	return audio.Clip{Data: resp.GetAudioContent(), Encoding: audio.EncodingMP3}, nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}

func buildRequest(req tts.Request, rate float64) *texttospeechpb.SynthesizeSpeechRequest {
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: req.LanguageCode,
			Name:         req.Voice,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_NEUTRAL,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  rate,
		},
	}
}
