// Package speech turns a queued utterance into the text, language and voice
// handed to synthesis.
//
// It has four parts, each used once per utterance by the playback worker:
//
//   - [LanguageSelector] picks the [Locale] for the text, calling an external
//     detector only when the text is long enough to detect reliably.
//   - [VoiceResolver] maps a speaker and locale to a synthesis voice.
//   - [Tracker] decides whether the speaker needs to be introduced.
//   - [Formatter] renders the final text from a locale template.
package speech

import "time"

// DefaultContinuityWindow is how long a speaker stays "current" after their
// last utterance.
const DefaultContinuityWindow = 60 * time.Second

// Decision is the outcome of a continuity check.
type Decision int

const (
	// Introduction means the utterance is prefixed with the speaker's name.
	Introduction Decision = iota

	// Continuation means the utterance is spoken bare.
	Continuation
)

// String returns the human-readable name of the decision.
func (d Decision) String() string {
	switch d {
	case Introduction:
		return "introduction"
	case Continuation:
		return "continuation"
	default:
		return "unknown"
	}
}

// Tracker remembers who spoke last and when.
//
// Tracker is not safe for concurrent use. It is owned by the playback worker,
// which is its only reader and writer.
type Tracker struct {
	window time.Duration
	now    func() time.Time

	lastSpeakerID string
	hasSpeaker    bool
	lastSpokenAt  time.Time
}

// TrackerOption configures a [Tracker].
type TrackerOption func(*Tracker)

// WithClock replaces the wall clock. Intended for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a Tracker with the given continuity window. A
// non-positive window falls back to [DefaultContinuityWindow]. The last-spoken
// time starts at construction time with no previous speaker.
func NewTracker(window time.Duration, opts ...TrackerOption) *Tracker {
	if window <= 0 {
		window = DefaultContinuityWindow
	}
	t := &Tracker{window: window, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	t.lastSpokenAt = t.now()
	return t
}

// Observe decides whether an utterance from speakerID is a continuation and
// records it as the most recent utterance.
//
// It is a continuation only when the same speaker spoke less than the window
// ago and the utterance is not image-derived. Continuations refresh the
// window too, so a rapid run of messages from one speaker stays collapsed.
func (t *Tracker) Observe(speakerID string, imageDerived bool) Decision {
	now := t.now()

	d := Introduction
	if t.hasSpeaker && t.lastSpeakerID == speakerID && now.Sub(t.lastSpokenAt) < t.window && !imageDerived {
		d = Continuation
	}

	t.lastSpeakerID = speakerID
	t.hasSpeaker = true
	t.lastSpokenAt = now
	return d
}

// LastSpeaker returns the id of the most recent speaker, or "" and false if
// nobody has spoken yet.
func (t *Tracker) LastSpeaker() (string, bool) {
	return t.lastSpeakerID, t.hasSpeaker
}

// LastSpokenAt returns when the most recent utterance was observed.
func (t *Tracker) LastSpokenAt() time.Time {
	return t.lastSpokenAt
}
