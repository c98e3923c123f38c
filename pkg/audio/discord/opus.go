package discord

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/voicerelay/pkg/audio"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
	// opusFrameBytes is the PCM input size of one Opus frame.
	opusFrameBytes = opusFrameSize * opusChannels * 2 // 3840
	// maxOpusPacket bounds the encoder output.
	maxOpusPacket = 4000
)

var discordFormat = audio.Format{SampleRate: opusSampleRate, Channels: opusChannels}

// opusEncoder wraps a gopus encoder for one connection's output.
type opusEncoder struct {
	enc *gopus.Encoder
}

func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode turns exactly one frame of 48 kHz stereo PCM into an Opus packet.
func (e *opusEncoder) encode(pcm []byte) ([]byte, error) {
	if len(pcm) != opusFrameBytes {
		return nil, fmt.Errorf("discord: opus frame is %d bytes, want %d", len(pcm), opusFrameBytes)
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	packet, err := e.enc.Encode(samples, opusFrameSize, maxOpusPacket)
	if err != nil {
		return nil, fmt.Errorf("discord: opus encode: %w", err)
	}
	return packet, nil
}
