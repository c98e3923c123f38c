package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"tts":          {"google", "elevenlabs", "gtranslate"},
	"langdetect":   {"google", "whatlang"},
	"caption":      {"openai"},
	"link_preview": {"linkpreview"},
}

// envRef matches ${NAME} references.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Variables that are already set win. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
		slog.Debug("config: loaded environment file", "path", p)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references from the environment, decodes a
// YAML config from r, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	raw = ExpandEnv(raw, os.LookupEnv)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces ${NAME} references using lookup. Unset variables expand
// to the empty string and are logged.
func ExpandEnv(data []byte, lookup func(string) (string, bool)) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := string(envRef.FindSubmatch(m)[1])
		v, ok := lookup(name)
		if !ok {
			slog.Warn("config: environment variable is not set", "name", name)
		}
		return []byte(v)
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}
	if cfg.Discord.GuildID == "" {
		errs = append(errs, errors.New("discord.guild_id is required"))
	}
	if cfg.Discord.VoiceChannelID == "" {
		errs = append(errs, errors.New("discord.voice_channel_id is required"))
	}

	// Relay
	r := cfg.Relay
	if r.ContinuityWindow < 0 {
		errs = append(errs, fmt.Errorf("relay.continuity_window %v must not be negative", r.ContinuityWindow))
	}
	if r.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("relay.idle_timeout %v must not be negative", r.IdleTimeout))
	}
	if r.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("relay.poll_interval %v must not be negative", r.PollInterval))
	}
	if r.ShortTextThreshold < 0 {
		errs = append(errs, fmt.Errorf("relay.short_text_threshold %d must not be negative", r.ShortTextThreshold))
	}

	// Locales
	codesSeen := make(map[string]int, len(cfg.Locales))
	for i, l := range cfg.Locales {
		prefix := fmt.Sprintf("locales[%d]", i)
		if l.Code == "" {
			errs = append(errs, fmt.Errorf("%s.code is required", prefix))
		} else {
			if prev, ok := codesSeen[l.Code]; ok {
				errs = append(errs, fmt.Errorf("%s.code %q is a duplicate of locales[%d]", prefix, l.Code, prev))
			}
			codesSeen[l.Code] = i
		}
		if l.Voice == "" {
			errs = append(errs, fmt.Errorf("%s.voice is required", prefix))
		}
		if !strings.Contains(l.Intro, "{text}") {
			errs = append(errs, fmt.Errorf("%s.intro must contain {text}", prefix))
		}
		if !strings.Contains(l.Image, "{text}") {
			errs = append(errs, fmt.Errorf("%s.image must contain {text}", prefix))
		}
	}
	if _, ok := codesSeen[r.PrimaryLocale]; !ok {
		errs = append(errs, fmt.Errorf("relay.primary_locale %q is not listed in locales", r.PrimaryLocale))
	}
	if _, ok := codesSeen[r.SecondaryLocale]; !ok {
		errs = append(errs, fmt.Errorf("relay.secondary_locale %q is not listed in locales", r.SecondaryLocale))
	}
	if r.PrimaryLocale != "" && r.PrimaryLocale == r.SecondaryLocale {
		errs = append(errs, fmt.Errorf("relay.primary_locale and relay.secondary_locale must differ (both %q)", r.PrimaryLocale))
	}

	// Voices
	for id, voice := range cfg.Voices {
		if id == "" || voice == "" {
			errs = append(errs, fmt.Errorf("voices: entry %q: %q needs both a speaker id and a voice", id, voice))
		}
	}

	// Providers
	for i, e := range cfg.Providers.TTS {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts[%d].name is required", i))
		}
		validateProviderName("tts", e.Name)
	}
	for i, e := range cfg.Providers.LangDetect {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.langdetect[%d].name is required", i))
		}
		validateProviderName("langdetect", e.Name)
	}
	validateProviderName("caption", cfg.Providers.Caption.Name)
	validateProviderName("link_preview", cfg.Providers.LinkPreview.Name)

	if cfg.Providers.Caption.Enabled() && cfg.Providers.Caption.APIKey == "" {
		slog.Warn("providers.caption is configured without an api_key; image captions will fail")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
