package config

import (
	"reflect"
	"sort"
)

// ConfigDiff describes what changed between two configs.
// Voices and the log level are applied live; everything else is reported in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoicesChanged bool
	VoiceChanges  []VoiceDiff // sorted by SpeakerID

	// RestartRequired names top-level sections that changed but are only
	// read at startup.
	RestartRequired []string
}

// Empty reports whether nothing the relay reads changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VoicesChanged && len(d.RestartRequired) == 0
}

// Sections lists what changed, live sections first.
func (d ConfigDiff) Sections() []string {
	var out []string
	if d.LogLevelChanged {
		out = append(out, "log_level")
	}
	if d.VoicesChanged {
		out = append(out, "voices")
	}
	return append(out, d.RestartRequired...)
}

// VoiceDiff describes a change to a single speaker voice override.
type VoiceDiff struct {
	SpeakerID string
	Old       string
	New       string
	Added     bool
	Removed   bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	for id, ov := range old.Voices {
		nv, ok := new.Voices[id]
		switch {
		case !ok:
			d.VoiceChanges = append(d.VoiceChanges, VoiceDiff{SpeakerID: id, Old: ov, Removed: true})
		case nv != ov:
			d.VoiceChanges = append(d.VoiceChanges, VoiceDiff{SpeakerID: id, Old: ov, New: nv})
		}
	}
	for id, nv := range new.Voices {
		if _, ok := old.Voices[id]; !ok {
			d.VoiceChanges = append(d.VoiceChanges, VoiceDiff{SpeakerID: id, New: nv, Added: true})
		}
	}
	sort.Slice(d.VoiceChanges, func(i, j int) bool {
		return d.VoiceChanges[i].SpeakerID < d.VoiceChanges[j].SpeakerID
	})
	d.VoicesChanged = len(d.VoiceChanges) > 0

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"discord", old.Discord, new.Discord},
		{"relay", old.Relay, new.Relay},
		{"locales", old.Locales, new.Locales},
		{"providers", old.Providers, new.Providers},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
