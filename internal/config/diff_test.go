package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/voicerelay/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Server:  config.ServerConfig{LogLevel: config.LogInfo},
		Discord: config.DiscordConfig{Token: "t", GuildID: "1", VoiceChannelID: "2"},
		Voices:  map[string]string{"a": "sv-SE-Wavenet-A", "b": "sv-SE-Wavenet-B"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.VoicesChanged || len(d.RestartRequired) != 0 {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()

	next := baseConfig()
	next.Server.LogLevel = config.LogDebug
	d := config.Diff(baseConfig(), next)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("got %+v, want log level change to debug", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level alone should not require restart: %v", d.RestartRequired)
	}
}

func TestDiff_Voices(t *testing.T) {
	t.Parallel()

	next := baseConfig()
	next.Voices = map[string]string{"a": "sv-SE-Wavenet-C", "c": "en-US-Wavenet-A"}
	d := config.Diff(baseConfig(), next)

	want := []config.VoiceDiff{
		{SpeakerID: "a", Old: "sv-SE-Wavenet-A", New: "sv-SE-Wavenet-C"},
		{SpeakerID: "b", Old: "sv-SE-Wavenet-B", Removed: true},
		{SpeakerID: "c", New: "en-US-Wavenet-A", Added: true},
	}
	if !d.VoicesChanged {
		t.Fatal("VoicesChanged = false")
	}
	if !slices.Equal(d.VoiceChanges, want) {
		t.Errorf("VoiceChanges = %+v, want %+v", d.VoiceChanges, want)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	next := baseConfig()
	next.Discord.VoiceChannelID = "3"
	next.Relay.IdleTimeout *= 2
	next.Providers.Caption = config.ProviderEntry{Name: "openai"}
	d := config.Diff(baseConfig(), next)

	want := []string{"discord", "relay", "providers"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
}

func TestConfigDiff_Sections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*config.Config)
		wantEmpty bool
		want      []string
	}{
		{"unchanged", func(*config.Config) {}, true, nil},
		{"log level", func(c *config.Config) { c.Server.LogLevel = config.LogWarn }, false, []string{"log_level"}},
		{"voices and restart", func(c *config.Config) {
			c.Voices["a"] = "sv-SE-Wavenet-D"
			c.Server.ListenAddr = ":9999"
		}, false, []string{"voices", "server"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			next := baseConfig()
			tt.mutate(next)
			d := config.Diff(baseConfig(), next)
			if d.Empty() != tt.wantEmpty {
				t.Errorf("Empty() = %v, want %v", d.Empty(), tt.wantEmpty)
			}
			if got := d.Sections(); !slices.Equal(got, tt.want) {
				t.Errorf("Sections() = %v, want %v", got, tt.want)
			}
		})
	}
}
