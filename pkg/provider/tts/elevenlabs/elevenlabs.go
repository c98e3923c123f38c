// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs WebSocket input-streaming API. It implements tts.Provider.
//
// The relay sends one complete utterance per connection: the text is written
// followed by the flush message, and audio chunks are collected until the
// server marks the generation final.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/voicerelay/pkg/audio"
	"github.com/MrWong99/voicerelay/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	wsEndpointFmt    = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets the PCM output format, "pcm_<rate>".
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// WithVoices maps relay voice names to ElevenLabs voice ids.
func WithVoices(m map[string]string) Option {
	return func(p *Provider) {
		for k, v := range m {
			p.voices[k] = v
		}
	}
}

// WithDefaultVoice sets the voice id used when a request's voice is not
// mapped.
func WithDefaultVoice(id string) Option {
	return func(p *Provider) { p.defaultVoice = id }
}

// WithEndpoint overrides the WebSocket URL format. Used in tests.
func WithEndpoint(format string) Option {
	return func(p *Provider) { p.endpointFmt = format }
}

// Provider implements tts.Provider backed by ElevenLabs.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	endpointFmt  string
	voices       map[string]string
	defaultVoice string
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		endpointFmt:  wsEndpointFmt,
		voices:       make(map[string]string),
	}
	for _, o := range opts {
		o(p)
	}
	if _, err := sampleRate(p.outputFormat); err != nil {
		return nil, err
	}
	return p, nil
}

// textMessage is one text payload sent over the socket.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is one message received from ElevenLabs.
type audioResponse struct {
	Audio   string `json:"audio"` // base64 PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (audio.Clip, error) {
	voiceID := p.voiceFor(req.Voice)
	if voiceID == "" {
		return audio.Clip{}, fmt.Errorf("%w: elevenlabs: no voice id for %q", tts.ErrSynthesis, req.Voice)
	}
	rate, _ := sampleRate(p.outputFormat)

	conn, _, err := websocket.Dial(ctx, p.url(voiceID), nil)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: elevenlabs: dial: %w", tts.ErrSynthesis, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(4 << 20)

	msgs := []textMessage{
		// ElevenLabs requires a single space as the first text value.
		{Text: " ", VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}, XiAPIKey: p.apiKey},
		{Text: req.Text + " "},
		{Text: ""},
	}
	for _, m := range msgs {
		b, _ := json.Marshal(m)
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return audio.Clip{}, fmt.Errorf("%w: elevenlabs: write: %w", tts.ErrSynthesis, err)
		}
	}

	var pcm bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && pcm.Len() > 0 {
				break
			}
			return audio.Clip{}, fmt.Errorf("%w: elevenlabs: read: %w", tts.ErrSynthesis, err)
		}
		done, err := appendAudio(&pcm, msg)
		if err != nil {
			return audio.Clip{}, err
		}
		if done {
			break
		}
	}
	if pcm.Len() == 0 {
		return audio.Clip{}, fmt.Errorf("%w: elevenlabs: no audio returned", tts.ErrSynthesis)
	}
	return audio.Clip{
		Data:     pcm.Bytes(),
		Encoding: audio.EncodingPCM,
		Format:   audio.Format{SampleRate: rate, Channels: 1},
	}, nil
}

// appendAudio decodes one server message into buf and reports whether the
// generation is final.
func appendAudio(buf *bytes.Buffer, msg []byte) (bool, error) {
	var resp audioResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return false, nil
	}
	if resp.Error != "" {
		return false, fmt.Errorf("%w: elevenlabs: %s", tts.ErrSynthesis, resp.Error)
	}
	if resp.Audio != "" {
		chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
		if err != nil {
			return false, fmt.Errorf("%w: elevenlabs: decode audio: %w", tts.ErrSynthesis, err)
		}
		buf.Write(chunk)
	}
	return resp.IsFinal, nil
}

func (p *Provider) voiceFor(name string) string {
	if id, ok := p.voices[name]; ok && id != "" {
		return id
	}
	return p.defaultVoice
}

func (p *Provider) url(voiceID string) string {
	return fmt.Sprintf(p.endpointFmt, voiceID, p.model, p.outputFormat)
}

// sampleRate parses "pcm_16000" into 16000.
func sampleRate(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not pcm_<rate>", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: output format %q has an invalid rate", format)
	}
	return rate, nil
}
