package discord

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voicerelay/internal/observe"
	"github.com/MrWong99/voicerelay/internal/queue"
	"github.com/MrWong99/voicerelay/pkg/provider/caption"
)

// Ingest results recorded on the ingested counter.
const (
	resultEnqueued     = "enqueued"
	resultBot          = "bot"
	resultOtherGuild   = "other_guild"
	resultOtherChannel = "other_channel"
	resultEmptyVoice   = "empty_voice"
	resultSpeaking     = "author_in_voice"
	resultEmpty        = "empty"
)

const defaultCaptionTimeout = 20 * time.Second

var (
	mentionRe = regexp.MustCompile(`<(@[!&]?|#)(\d+)>`)
	urlRe     = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>]+`)
)

// Enqueuer accepts utterances for playback. *queue.Queue satisfies it.
type Enqueuer interface {
	Enqueue(u queue.Utterance) string
}

// IngestConfig configures an [Ingester].
type IngestConfig struct {
	GuildID        string
	VoiceChannelID string

	// TextChannelIDs restricts ingestion. Empty accepts every channel.
	TextChannelIDs []string

	// LinkTemplate replaces links that are not summarised; {domain} is the
	// host. Empty drops such links.
	LinkTemplate string

	// CaptionLanguage is the BCP-47 code captions are requested in.
	CaptionLanguage string

	// CaptionTimeout bounds each caption or link summary call.
	CaptionTimeout time.Duration

	Queue Enqueuer

	// Captioner describes image attachments. Nil skips images.
	Captioner caption.ImageCaptioner

	// Links summarises the first link of a message. Nil uses LinkTemplate.
	Links caption.LinkSummarizer

	Metrics *observe.Metrics
}

// Ingester turns guild chat messages into queued utterances.
type Ingester struct {
	cfg      IngestConfig
	channels map[string]struct{}
	metrics  *observe.Metrics
}

// NewIngester returns an Ingester for cfg.
func NewIngester(cfg IngestConfig) *Ingester {
	if cfg.CaptionTimeout <= 0 {
		cfg.CaptionTimeout = defaultCaptionTimeout
	}
	in := &Ingester{cfg: cfg, metrics: cfg.Metrics}
	if in.metrics == nil {
		in.metrics = observe.DefaultMetrics()
	}
	if len(cfg.TextChannelIDs) > 0 {
		in.channels = make(map[string]struct{}, len(cfg.TextChannelIDs))
		for _, id := range cfg.TextChannelIDs {
			in.channels[id] = struct{}{}
		}
	}
	return in
}

// Handler returns a discordgo event handler bound to ctx. discordgo runs
// handlers concurrently, so messages are enqueued in completion order.
func (in *Ingester) Handler(ctx context.Context) func(*discordgo.Session, *discordgo.MessageCreate) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		in.Ingest(ctx, s.State, m.Message)
	}
}

// Ingest applies the admission rules to m and enqueues its text and image
// captions. It returns the number of utterances enqueued.
func (in *Ingester) Ingest(ctx context.Context, st *discordgo.State, m *discordgo.Message) int {
	if m == nil || m.Author == nil {
		return 0
	}
	if reason, ok := in.admit(st, m); !ok {
		in.metrics.RecordIngest(ctx, reason)
		slog.Debug("discord: message ignored", "reason", reason, "channel_id", m.ChannelID, "author_id", m.Author.ID)
		return 0
	}

	speaker := speakerName(st, m)
	var utterances []queue.Utterance
	if text := in.text(ctx, st, m); text != "" {
		utterances = append(utterances, queue.Utterance{Text: text, SpeakerName: speaker, SpeakerID: m.Author.ID})
	}
	for _, a := range m.Attachments {
		if text := in.captionAttachment(ctx, a); text != "" {
			utterances = append(utterances, queue.Utterance{Text: text, SpeakerName: speaker, SpeakerID: m.Author.ID, ImageDerived: true})
		}
	}
	if len(utterances) == 0 {
		in.metrics.RecordIngest(ctx, resultEmpty)
		return 0
	}

	for _, u := range utterances {
		id := in.cfg.Queue.Enqueue(u)
		slog.Info("discord: utterance enqueued", "utterance_id", id, "speaker", u.SpeakerName, "image", u.ImageDerived)
	}
	in.metrics.RecordIngest(ctx, resultEnqueued)
	return len(utterances)
}

// admit returns the ignore reason and false when m must not be spoken.
func (in *Ingester) admit(st *discordgo.State, m *discordgo.Message) (string, bool) {
	if m.Author.Bot {
		return resultBot, false
	}
	if m.GuildID != in.cfg.GuildID {
		return resultOtherGuild, false
	}
	if in.channels != nil {
		if _, ok := in.channels[m.ChannelID]; !ok {
			return resultOtherChannel, false
		}
	}

	listeners, authorSpeaking := in.voicePresence(st, m.Author.ID)
	if listeners == 0 {
		return resultEmptyVoice, false
	}
	if authorSpeaking {
		return resultSpeaking, false
	}
	return "", true
}

// voicePresence counts users other than the bot in the voice channel and
// reports whether authorID is among them unmuted.
func (in *Ingester) voicePresence(st *discordgo.State, authorID string) (listeners int, authorSpeaking bool) {
	if st == nil {
		return 0, false
	}
	g, err := st.Guild(in.cfg.GuildID)
	if err != nil {
		return 0, false
	}

	self := ""
	st.RLock()
	defer st.RUnlock()
	if st.User != nil {
		self = st.User.ID
	}
	for _, vs := range g.VoiceStates {
		if vs.ChannelID != in.cfg.VoiceChannelID || vs.UserID == self {
			continue
		}
		listeners++
		if vs.UserID == authorID && !vs.Mute && !vs.SelfMute {
			authorSpeaking = true
		}
	}
	return listeners, authorSpeaking
}

// text returns the speakable form of the message content.
func (in *Ingester) text(ctx context.Context, st *discordgo.State, m *discordgo.Message) string {
	content := replaceMentions(st, m)
	content = in.replaceLinks(ctx, content)
	return strings.Join(strings.Fields(content), " ")
}

// replaceLinks summarises the first link when a summarizer is configured and
// substitutes LinkTemplate for the rest.
func (in *Ingester) replaceLinks(ctx context.Context, content string) string {
	first := true
	return urlRe.ReplaceAllStringFunc(content, func(match string) string {
		raw := strings.TrimRight(match, ".,!?)")
		return in.linkText(ctx, raw, &first) + match[len(raw):]
	})
}

// linkText returns the spoken replacement for one link. Only the first link
// of a message is summarised.
func (in *Ingester) linkText(ctx context.Context, raw string, first *bool) string {
	target := raw
	if !strings.Contains(strings.ToLower(target), "://") {
		target = "https://" + target
	}
	if *first && in.cfg.Links != nil {
		*first = false
		cctx, cancel := context.WithTimeout(ctx, in.cfg.CaptionTimeout)
		summary, err := in.cfg.Links.Summarize(cctx, target)
		cancel()
		if err == nil && summary != "" {
			return summary
		}
		slog.Warn("discord: link summary failed", "url", target, "err", err)
	}
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" || in.cfg.LinkTemplate == "" {
		return ""
	}
	return strings.ReplaceAll(in.cfg.LinkTemplate, "{domain}", strings.TrimPrefix(u.Hostname(), "www."))
}

// captionAttachment returns a caption for image attachments, or "".
func (in *Ingester) captionAttachment(ctx context.Context, a *discordgo.MessageAttachment) string {
	if a == nil || in.cfg.Captioner == nil || !isImage(a) {
		return ""
	}
	cctx, cancel := context.WithTimeout(ctx, in.cfg.CaptionTimeout)
	defer cancel()
	text, err := in.cfg.Captioner.Caption(cctx, caption.Image{
		URL:          a.URL,
		ContentType:  a.ContentType,
		LanguageCode: in.cfg.CaptionLanguage,
	})
	if err != nil {
		slog.Warn("discord: image caption failed", "attachment", a.Filename, "err", err)
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

func isImage(a *discordgo.MessageAttachment) bool {
	if a.ContentType != "" {
		return strings.HasPrefix(a.ContentType, "image/")
	}
	return a.Width > 0 && a.Height > 0
}

// replaceMentions turns <@id>, <@!id>, <@&id> and <#id> into readable names.
// Unknown roles and channels are dropped.
func replaceMentions(st *discordgo.State, m *discordgo.Message) string {
	users := make(map[string]*discordgo.User, len(m.Mentions))
	for _, u := range m.Mentions {
		users[u.ID] = u
	}
	return mentionRe.ReplaceAllStringFunc(m.Content, func(tok string) string {
		sub := mentionRe.FindStringSubmatch(tok)
		kind, id := sub[1], sub[2]
		switch kind {
		case "@", "@!":
			u, ok := users[id]
			if !ok {
				return ""
			}
			return "@" + displayName(memberOf(st, m.GuildID, id), u)
		case "@&":
			if st == nil {
				return ""
			}
			if r, err := st.Role(m.GuildID, id); err == nil {
				return "@" + r.Name
			}
		case "#":
			if st == nil {
				return ""
			}
			if c, err := st.Channel(id); err == nil {
				return "#" + c.Name
			}
		}
		return ""
	})
}

// speakerName resolves the author's display name.
func speakerName(st *discordgo.State, m *discordgo.Message) string {
	member := m.Member
	if member == nil || member.Nick == "" {
		if cached := memberOf(st, m.GuildID, m.Author.ID); cached != nil {
			member = cached
		}
	}
	return displayName(member, m.Author)
}

// displayName prefers the guild nickname, then the global name, then the
// username.
func displayName(member *discordgo.Member, u *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func memberOf(st *discordgo.State, guildID, userID string) *discordgo.Member {
	if st == nil {
		return nil
	}
	mem, err := st.Member(guildID, userID)
	if err != nil {
		return nil
	}
	return mem
}
