package main

import (
	"context"
	"log/slog"

	"github.com/MrWong99/voicerelay/internal/config"
	"github.com/MrWong99/voicerelay/pkg/provider/caption"
	"github.com/MrWong99/voicerelay/pkg/provider/caption/linkpreview"
	oacaption "github.com/MrWong99/voicerelay/pkg/provider/caption/openai"
	"github.com/MrWong99/voicerelay/pkg/provider/langdetect"
	googledetect "github.com/MrWong99/voicerelay/pkg/provider/langdetect/google"
	"github.com/MrWong99/voicerelay/pkg/provider/langdetect/whatlang"
	"github.com/MrWong99/voicerelay/pkg/provider/tts"
	"github.com/MrWong99/voicerelay/pkg/provider/tts/elevenlabs"
	googletts "github.com/MrWong99/voicerelay/pkg/provider/tts/google"
	"github.com/MrWong99/voicerelay/pkg/provider/tts/gtranslate"
)

// builtinProviders maps provider kinds to the implementations that ship
// with voicerelay. Used for startup logging.
var builtinProviders = map[string][]string{
	"tts":          {"google", "elevenlabs", "gtranslate"},
	"langdetect":   {"google", "whatlang"},
	"caption":      {"openai"},
	"link_preview": {"linkpreview"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// ctx is used by the Google clients while dialling.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("google", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []googletts.Option
		if rate, ok := entry.FloatOption("speaking_rate"); ok {
			opts = append(opts, googletts.WithSpeakingRate(rate))
		}
		return googletts.New(ctx, entry.CredentialsFile, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt, ok := entry.StringOption("output_format"); ok {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if voices := entry.StringMapOption("voices"); len(voices) > 0 {
			opts = append(opts, elevenlabs.WithVoices(voices))
		}
		if id, ok := entry.StringOption("default_voice"); ok {
			opts = append(opts, elevenlabs.WithDefaultVoice(id))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("gtranslate", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []gtranslate.Option
		if entry.BaseURL != "" {
			opts = append(opts, gtranslate.WithEndpoint(entry.BaseURL))
		}
		if lang, ok := entry.StringOption("fallback_language"); ok {
			opts = append(opts, gtranslate.WithFallbackLanguage(lang))
		}
		return gtranslate.New(opts...), nil
	})

	// ── Language detection ────────────────────────────────────────────────────

	reg.RegisterDetector("google", func(entry config.ProviderEntry) (langdetect.Detector, error) {
		return googledetect.New(ctx, entry.APIKey)
	})

	reg.RegisterDetector("whatlang", func(entry config.ProviderEntry) (langdetect.Detector, error) {
		var opts []whatlang.Option
		if c, ok := entry.FloatOption("min_confidence"); ok {
			opts = append(opts, whatlang.WithMinConfidence(c))
		}
		if wl := stringSlice(entry.Options["whitelist"]); len(wl) > 0 {
			opts = append(opts, whatlang.WithWhitelist(wl...))
		}
		return whatlang.New(opts...), nil
	})

	// ── Captions ──────────────────────────────────────────────────────────────

	reg.RegisterCaptioner("openai", func(entry config.ProviderEntry) (caption.ImageCaptioner, error) {
		var opts []oacaption.Option
		if entry.BaseURL != "" {
			opts = append(opts, oacaption.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oacaption.WithModel(entry.Model))
		}
		if n, ok := entry.FloatOption("max_tokens"); ok {
			opts = append(opts, oacaption.WithMaxTokens(int(n)))
		}
		return oacaption.New(entry.APIKey, opts...)
	})

	reg.RegisterLinkSummarizer("linkpreview", func(entry config.ProviderEntry) (caption.LinkSummarizer, error) {
		var opts []linkpreview.Option
		if n, ok := entry.FloatOption("max_runes"); ok {
			opts = append(opts, linkpreview.WithMaxRunes(int(n)))
		}
		return linkpreview.New(opts...), nil
	})

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// stringSlice converts a YAML list option to strings, skipping other values.
func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
