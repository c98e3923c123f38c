package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voicerelay/pkg/audio"
)

var _ audio.Connection = (*Connection)(nil)

// Connection wraps a discordgo.VoiceConnection and adapts it to
// [audio.Connection]. Frames handed to Play are converted to 48 kHz stereo,
// cut into 20 ms Opus frames and queued on the voice connection.
//
// Connection is safe for concurrent use; Play calls are serialised.
type Connection struct {
	vc        *discordgo.VoiceConnection
	guildID   string
	channelID string
	botID     string
	enc       *opusEncoder

	playMu sync.Mutex

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once

	removeHandler func()

	// disconnectVC and speaking default to the vc methods; tests override them.
	disconnectVC func() error
	speaking     func(bool) error
}

func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID, channelID string) (*Connection, error) {
	enc, err := newOpusEncoder()
	if err != nil {
		return nil, err
	}
	c := &Connection{
		vc:           vc,
		guildID:      guildID,
		channelID:    channelID,
		botID:        botUserID(session),
		enc:          enc,
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
		speaking:     vc.Speaking,
	}
	c.removeHandler = session.AddHandler(c.handleVoiceStateUpdate)
	return c, nil
}

// Play implements [audio.Connection].
func (c *Connection) Play(ctx context.Context, frames <-chan audio.AudioFrame) audio.PlaybackResult {
	c.playMu.Lock()
	defer c.playMu.Unlock()

	select {
	case <-c.done:
		return audio.PlaybackResult{Event: audio.PlaybackDisconnected}
	default:
	}

	c.setSpeaking(true)
	defer func() {
		select {
		case <-c.done:
		default:
			c.setSpeaking(false)
		}
	}()

	conv := audio.Converter{Target: discordFormat}
	var buf []byte
	for {
		select {
		case <-c.done:
			return audio.PlaybackResult{Event: audio.PlaybackDisconnected}
		case <-ctx.Done():
			return audio.PlaybackResult{Event: audio.PlaybackFailed, Err: ctx.Err()}
		case f, ok := <-frames:
			if !ok {
				if len(buf) > 0 {
					// Pad the tail with silence to a whole Opus frame.
					buf = append(buf, make([]byte, opusFrameBytes-len(buf))...)
					if res, sent := c.send(ctx, buf); !sent {
						return res
					}
				}
				return audio.PlaybackResult{Event: audio.PlaybackFinished}
			}
			buf = append(buf, conv.Convert(f).Data...)
			for len(buf) >= opusFrameBytes {
				if res, sent := c.send(ctx, buf[:opusFrameBytes]); !sent {
					return res
				}
				buf = buf[opusFrameBytes:]
			}
		}
	}
}

// send encodes one frame and queues it. On failure it returns the terminal
// result and false.
func (c *Connection) send(ctx context.Context, pcm []byte) (audio.PlaybackResult, bool) {
	packet, err := c.enc.encode(pcm)
	if err != nil {
		return audio.PlaybackResult{Event: audio.PlaybackFailed, Err: fmt.Errorf("%w: %w", audio.ErrPlayback, err)}, false
	}
	select {
	case c.vc.OpusSend <- packet:
		return audio.PlaybackResult{}, true
	case <-c.done:
		return audio.PlaybackResult{Event: audio.PlaybackDisconnected}, false
	case <-ctx.Done():
		return audio.PlaybackResult{Event: audio.PlaybackFailed, Err: ctx.Err()}, false
	}
}

// Done implements [audio.Connection].
func (c *Connection) Done() <-chan struct{} { return c.done }

// Disconnect leaves the voice channel. It is safe to call more than once;
// subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.markDone()
		if c.removeHandler != nil {
			c.removeHandler()
		}
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

func (c *Connection) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// handleVoiceStateUpdate notices the bot itself leaving the channel without
// Disconnect being called, e.g. a moderator kicked it.
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu == nil || vsu.VoiceState == nil || vsu.GuildID != c.guildID {
		return
	}
	if c.botID == "" || vsu.UserID != c.botID {
		return
	}
	if vsu.ChannelID == c.channelID {
		return
	}
	slog.Warn("discord: voice connection dropped by server",
		"guild_id", c.guildID,
		"channel_id", c.channelID,
		"new_channel_id", vsu.ChannelID,
	)
	c.markDone()
}

func (c *Connection) setSpeaking(b bool) {
	if c.speaking == nil {
		return
	}
	if err := c.speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "err", err)
	}
}
