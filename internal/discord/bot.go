// Package discord provides the Discord bot layer for the voice relay. It owns
// the discordgo.Session lifecycle and turns guild chat messages into queued
// utterances.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voicerelay/pkg/audio"
	discordaudio "github.com/MrWong99/voicerelay/pkg/audio/discord"
)

// ErrNotReady is returned by [Bot.Ready] while the gateway session is not
// established.
var ErrNotReady = errors.New("discord: gateway not ready")

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token without the "Bot " prefix.
	Token string

	// GuildID is the guild the relay serves.
	GuildID string

	// VoiceChannelID is the channel the relay speaks in.
	VoiceChannelID string
}

// Bot owns the Discord gateway connection.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	platform  *discordaudio.Platform
	guildID   string
	voiceID   string
	ready     atomic.Bool
	removers  []func()
	closeOnce sync.Once
}

// New creates a Bot and connects to Discord. The session tracks guild, member
// and voice state so ingestion can inspect who is listening.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	session.StateEnabled = true
	session.State.TrackVoice = true
	session.State.TrackMembers = true
	session.State.TrackRoles = true
	session.State.TrackChannels = true

	b := &Bot{
		session:  session,
		platform: discordaudio.New(session, cfg.GuildID),
		guildID:  cfg.GuildID,
		voiceID:  cfg.VoiceChannelID,
	}
	b.removers = append(b.removers,
		session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			b.ready.Store(true)
			slog.Info("discord: gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
		}),
		session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
			b.ready.Store(true)
		}),
		session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			b.ready.Store(false)
			slog.Warn("discord: gateway disconnected")
		}),
	)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return b, nil
}

// Platform returns the audio.Platform for voice channel connections.
func (b *Bot) Platform() audio.Platform {
	return b.platform
}

// GuildID returns the target guild ID.
func (b *Bot) GuildID() string {
	return b.guildID
}

// Session returns the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// OnMessage registers h for MESSAGE_CREATE events. The handler is removed on
// [Bot.Close].
func (b *Bot) OnMessage(h func(*discordgo.Session, *discordgo.MessageCreate)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removers = append(b.removers, b.session.AddHandler(h))
}

// Ready reports whether the gateway is up and the voice channel is known to
// the state cache.
func (b *Bot) Ready(context.Context) error {
	if !b.ready.Load() {
		return ErrNotReady
	}
	s := b.Session()
	if _, err := s.State.Channel(b.voiceID); err != nil {
		return fmt.Errorf("discord: voice channel %q: %w", b.voiceID, err)
	}
	return nil
}

// Run blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Close removes handlers and disconnects from Discord.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for _, remove := range b.removers {
			remove()
		}
		b.removers = nil
		b.ready.Store(false)

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord: bot closed")
	})
	return closeErr
}
