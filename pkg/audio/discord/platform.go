// Package discord provides an [audio.Platform] backed by Discord voice
// channels via bwmarrin/discordgo. It turns the relay's PCM frames into
// 20 ms Opus packets on the voice connection.
//
// The platform borrows an open *discordgo.Session from the bot layer. The
// session must track guild voice states so that a disconnect initiated by
// Discord (kick, channel deletion) can be noticed.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voicerelay/pkg/audio"
)

var _ audio.Platform = (*Platform)(nil)

// Platform implements [audio.Platform] for one guild.
//
// Platform is safe for concurrent use.
type Platform struct {
	session *discordgo.Session
	guildID string
}

// New creates a Platform for the given session and guild.
func New(session *discordgo.Session, guildID string) *Platform {
	return &Platform{session: session, guildID: guildID}
}

// Connect joins channelID unmuted and deafened; the relay only speaks.
func (p *Platform) Connect(ctx context.Context, channelID string) (audio.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}
	vc, err := p.session.ChannelVoiceJoin(p.guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	conn, err := newConnection(vc, p.session, p.guildID, channelID)
	if err != nil {
		_ = vc.Disconnect()
		return nil, err
	}
	return conn, nil
}

// botUserID returns the session's own user id, or "" before READY.
func botUserID(s *discordgo.Session) string {
	if s == nil || s.State == nil || s.State.User == nil {
		return ""
	}
	return s.State.User.ID
}
