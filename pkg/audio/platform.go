// Package audio defines the voice-channel abstractions used by the relay and
// the PCM plumbing between synthesis and playback.
//
// The two primary abstractions are:
//
//   - [Platform] joins a voice channel and returns a [Connection].
//   - [Connection] plays one stream of frames at a time and reports when the
//     platform drops it.
//
// Platform-specific adapters live in sub-packages (audio/discord).
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrPlayback is wrapped by errors returned when a clip could not be played.
var ErrPlayback = errors.New("audio: playback failed")

// AudioFrame is one chunk of little-endian int16 PCM.
type AudioFrame struct {
	// Data holds interleaved samples.
	Data []byte

	// SampleRate in Hz, e.g. 48000 for Discord.
	SampleRate int

	// Channels is 1 for mono or 2 for stereo.
	Channels int

	// Timestamp is the offset of the frame from the start of its clip.
	Timestamp time.Duration
}

// PlaybackEvent is the terminal state of one [Connection.Play] call.
type PlaybackEvent int

const (
	// PlaybackFinished means every frame was sent.
	PlaybackFinished PlaybackEvent = iota

	// PlaybackDisconnected means the connection went away mid-clip.
	PlaybackDisconnected

	// PlaybackFailed means the platform rejected or could not encode audio.
	PlaybackFailed
)

// String returns the human-readable name of the event.
func (e PlaybackEvent) String() string {
	switch e {
	case PlaybackFinished:
		return "finished"
	case PlaybackDisconnected:
		return "disconnected"
	case PlaybackFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PlaybackResult is returned exactly once per [Connection.Play] call.
type PlaybackResult struct {
	Event PlaybackEvent

	// Err is set for PlaybackFailed and may be set for PlaybackDisconnected.
	Err error
}

// OK reports whether the clip played to completion.
func (r PlaybackResult) OK() bool { return r.Event == PlaybackFinished }

// Connection is an active session on one voice channel.
//
// Implementations must be safe for concurrent use, but only one Play call
// is in progress at a time; concurrent callers are serialised.
type Connection interface {
	// Play sends frames until the channel closes, ctx is cancelled, or the
	// connection drops. It always returns; it never blocks past Disconnect
	// or a platform-initiated drop.
	Play(ctx context.Context, frames <-chan AudioFrame) PlaybackResult

	// Done is closed when the connection ends for any reason, including a
	// disconnect initiated by the platform (kicked, channel deleted).
	Done() <-chan struct{}

	// Disconnect leaves the channel. It is safe to call more than once;
	// subsequent calls return nil.
	Disconnect() error
}

// Platform joins voice channels.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins channelID. ctx governs the join attempt only; the
	// returned Connection lives until it is disconnected.
	Connect(ctx context.Context, channelID string) (Connection, error)
}
