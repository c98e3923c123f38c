// Package config provides the configuration schema, loader, watcher, and
// provider registry for the voice relay.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr         = ":8080"
	DefaultContinuityWindow   = 60 * time.Second
	DefaultIdleTimeout        = 5 * time.Minute
	DefaultPollInterval       = time.Second
	DefaultShortTextThreshold = 20
	DefaultPrimaryLocale      = "sv-SE"
	DefaultSecondaryLocale    = "en-US"
	DefaultLinkTemplate       = "URL för {domain}"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Discord   DiscordConfig     `yaml:"discord"`
	Relay     RelayConfig       `yaml:"relay"`
	Locales   []LocaleConfig    `yaml:"locales"`
	Voices    map[string]string `yaml:"voices"`
	Providers ProvidersConfig   `yaml:"providers"`
}

// ServerConfig holds the HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for health and metrics (e.g., ":8080").
	// Set to "-" to disable the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It can be changed without a restart.
	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig selects the bot account, the guild, and the channels the
// relay listens to and speaks in.
type DiscordConfig struct {
	// Token is the bot token, usually "${DISCORD_TOKEN}".
	Token string `yaml:"token"`

	// GuildID is the guild the relay serves.
	GuildID string `yaml:"guild_id"`

	// VoiceChannelID is the fixed voice channel utterances are spoken in.
	VoiceChannelID string `yaml:"voice_channel_id"`

	// TextChannelIDs restricts ingestion to these channels. Empty means every
	// text channel in the guild.
	TextChannelIDs []string `yaml:"text_channel_ids"`

	// AnnounceSpeaker enables "<name> says:" introductions. Defaults to true.
	AnnounceSpeaker *bool `yaml:"announce_speaker"`

	// LinkTemplate replaces links that are not summarised. {domain} is the
	// link's host.
	LinkTemplate string `yaml:"link_template"`
}

// Announce reports whether speaker introductions are enabled.
func (d DiscordConfig) Announce() bool {
	return d.AnnounceSpeaker == nil || *d.AnnounceSpeaker
}

// RelayConfig tunes the playback worker and connection lifecycle.
type RelayConfig struct {
	// ContinuityWindow is how long the same speaker may go unannounced.
	ContinuityWindow time.Duration `yaml:"continuity_window"`

	// IdleTimeout releases the voice connection after this much silence.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// PollInterval is the empty-queue sleep of the worker.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ShortTextThreshold is the character count below which language
	// detection is skipped.
	ShortTextThreshold int `yaml:"short_text_threshold"`

	// PrimaryLocale and SecondaryLocale name entries of [Config.Locales].
	PrimaryLocale   string `yaml:"primary_locale"`
	SecondaryLocale string `yaml:"secondary_locale"`
}

// LocaleConfig is one language bucket. Templates use {speaker} and {text}.
type LocaleConfig struct {
	Code  string `yaml:"code"`
	Voice string `yaml:"voice"`
	Intro string `yaml:"intro"`
	Image string `yaml:"image"`
}

// ProvidersConfig declares the backends for each external service. Each
// entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	// TTS lists synthesis backends in preference order; later entries are
	// fallbacks.
	TTS []ProviderEntry `yaml:"tts"`

	// LangDetect lists language detectors in preference order.
	LangDetect []ProviderEntry `yaml:"langdetect"`

	// Caption describes image attachments. Optional.
	Caption ProviderEntry `yaml:"caption"`

	// LinkPreview summarises links in messages. Optional.
	LinkPreview ProviderEntry `yaml:"link_preview"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "google", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// CredentialsFile is a Google service account JSON file. Empty uses
	// application default credentials.
	CredentialsFile string `yaml:"credentials_file"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// Enabled reports whether the entry names a provider.
func (e ProviderEntry) Enabled() bool { return e.Name != "" }

// StringOption returns Options[key] if it is a string.
func (e ProviderEntry) StringOption(key string) (string, bool) {
	v, ok := e.Options[key].(string)
	return v, ok
}

// FloatOption returns Options[key] as a float64 if it is numeric.
func (e ProviderEntry) FloatOption(key string) (float64, bool) {
	switch v := e.Options[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// StringMapOption returns Options[key] as a map of strings, skipping
// non-string values.
func (e ProviderEntry) StringMapOption(key string) map[string]string {
	raw, ok := e.Options[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Discord.LinkTemplate == "" {
		cfg.Discord.LinkTemplate = DefaultLinkTemplate
	}
	r := &cfg.Relay
	if r.ContinuityWindow == 0 {
		r.ContinuityWindow = DefaultContinuityWindow
	}
	if r.IdleTimeout == 0 {
		r.IdleTimeout = DefaultIdleTimeout
	}
	if r.PollInterval == 0 {
		r.PollInterval = DefaultPollInterval
	}
	if r.ShortTextThreshold == 0 {
		r.ShortTextThreshold = DefaultShortTextThreshold
	}
	if len(cfg.Locales) == 0 {
		cfg.Locales = []LocaleConfig{
			{Code: DefaultPrimaryLocale, Voice: "sv-SE-Wavenet-C", Intro: "{speaker} säger: {text}", Image: "Bild skickad av {speaker}: {text}"},
			{Code: DefaultSecondaryLocale, Voice: "en-US-Wavenet-C", Intro: "{speaker} says: {text}", Image: "Image sent by {speaker}: {text}"},
		}
	}
	if r.PrimaryLocale == "" {
		r.PrimaryLocale = cfg.Locales[0].Code
	}
	if r.SecondaryLocale == "" {
		r.SecondaryLocale = DefaultSecondaryLocale
		if len(cfg.Locales) > 1 {
			r.SecondaryLocale = cfg.Locales[1].Code
		}
	}
	if len(cfg.Providers.TTS) == 0 {
		cfg.Providers.TTS = []ProviderEntry{{Name: "gtranslate"}}
	}
	if len(cfg.Providers.LangDetect) == 0 {
		cfg.Providers.LangDetect = []ProviderEntry{{Name: "whatlang"}}
	}
}

// Locale returns the locale with the given code.
func (c *Config) Locale(code string) (LocaleConfig, bool) {
	for _, l := range c.Locales {
		if l.Code == code {
			return l, true
		}
	}
	return LocaleConfig{}, false
}
