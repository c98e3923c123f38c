// Package relay runs the playback worker: the single consumer that turns
// queued utterances into speech, one at a time, in enqueue order.
//
// For each utterance the worker selects a locale, resolves the speaker's
// voice, applies the continuity policy, formats the text, joins the voice
// channel if needed, synthesises and plays the clip. The utterance is removed
// from the queue once that attempt ends, whether it succeeded or not; a
// failure never stops the loop.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voicerelay/internal/observe"
	"github.com/MrWong99/voicerelay/internal/queue"
	"github.com/MrWong99/voicerelay/internal/speech"
	"github.com/MrWong99/voicerelay/pkg/audio"
	"github.com/MrWong99/voicerelay/pkg/provider/tts"
)

// DefaultPollInterval is how long the worker sleeps on an empty queue before
// looking again. An enqueue wakes it early.
const DefaultPollInterval = time.Second

// Session is the voice connection the worker speaks through. It is
// implemented by *session.Manager.
type Session interface {
	EnsureConnected(ctx context.Context) error
	Play(ctx context.Context, frames <-chan audio.AudioFrame) audio.PlaybackResult
}

// Config wires a [Worker]. All fields except PollInterval and Metrics are
// required.
type Config struct {
	Queue       *queue.Queue
	Language    *speech.LanguageSelector
	Voices      *speech.VoiceResolver
	Continuity  *speech.Tracker
	Formatter   speech.Formatter
	Synthesizer tts.Provider
	Session     Session

	// PollInterval defaults to [DefaultPollInterval] if zero.
	PollInterval time.Duration

	// Metrics defaults to [observe.DefaultMetrics] if nil.
	Metrics *observe.Metrics
}

// Stats is a snapshot of the worker's counters.
type Stats struct {
	// Spoken counts utterances played to completion.
	Spoken uint64 `json:"spoken"`

	// Failed counts utterances dropped after a failed attempt.
	Failed uint64 `json:"failed"`

	// Busy is true while an utterance is in flight.
	Busy bool `json:"busy"`
}

// Worker is the playback loop. Create it with [New] and start it with
// [Worker.Run]; only one Run may be active.
type Worker struct {
	queue       *queue.Queue
	language    *speech.LanguageSelector
	voices      *speech.VoiceResolver
	continuity  *speech.Tracker
	formatter   speech.Formatter
	synthesizer tts.Provider
	session     Session
	poll        time.Duration
	metrics     *observe.Metrics

	spoken atomic.Uint64
	failed atomic.Uint64
	busy   atomic.Bool
}

// New creates a [Worker] from cfg.
func New(cfg Config) *Worker {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Worker{
		queue:       cfg.Queue,
		language:    cfg.Language,
		voices:      cfg.Voices,
		continuity:  cfg.Continuity,
		formatter:   cfg.Formatter,
		synthesizer: cfg.Synthesizer,
		session:     cfg.Session,
		poll:        poll,
		metrics:     m,
	}
}

// Stats returns the current counters. Safe to call from any goroutine.
func (w *Worker) Stats() Stats {
	return Stats{
		Spoken: w.spoken.Load(),
		Failed: w.failed.Load(),
		Busy:   w.busy.Load(),
	}
}

// Run consumes the queue until ctx is cancelled. The attempt in flight when
// ctx is cancelled is aborted and its utterance removed. Run returns nil on
// cancellation.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("relay: playback worker started", "poll_interval", w.poll)
	defer slog.Info("relay: playback worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		u, ok := w.queue.Oldest()
		if !ok {
			if !w.wait(ctx) {
				return nil
			}
			continue
		}
		w.process(ctx, u)
	}
}

// wait sleeps for the poll interval or until an enqueue. It returns false if
// ctx was cancelled.
func (w *Worker) wait(ctx context.Context) bool {
	t := time.NewTimer(w.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
	case <-w.queue.Wake():
	}
	return true
}

// process runs one playback attempt for u and always removes it afterwards.
func (w *Worker) process(ctx context.Context, u queue.Utterance) {
	w.busy.Store(true)
	defer w.busy.Store(false)

	ctx = observe.WithUtterance(ctx, u.ID)
	ctx, span := observe.StartSpan(ctx, "relay.utterance",
		trace.WithAttributes(
			attribute.String("speaker.id", u.SpeakerID),
			attribute.Bool("utterance.image", u.ImageDerived),
		),
	)
	defer span.End()

	defer w.queue.Remove(u.ID)

	log := observe.Logger(ctx).With("speaker", u.SpeakerName)
	if !u.EnqueuedAt.IsZero() {
		w.metrics.QueueWait.Record(ctx, time.Since(u.EnqueuedAt).Seconds())
	}

	outcome, err := w.attempt(ctx, log, u)
	w.metrics.RecordUtterance(ctx, outcome)
	span.SetAttributes(attribute.String("utterance.outcome", outcome))
	if outcome == observe.OutcomeSpoken {
		w.spoken.Add(1)
		return
	}
	w.failed.Add(1)
	observe.SpanError(span, err)
}

func (w *Worker) attempt(ctx context.Context, log *slog.Logger, u queue.Utterance) (string, error) {
	loc := w.selectLocale(ctx, u.Text)
	voice := w.voices.Resolve(u.SpeakerID, loc)
	decision := w.continuity.Observe(u.SpeakerID, u.ImageDerived)
	text := w.formatter.Format(u.Text, u.SpeakerName, u.ImageDerived, loc, decision)

	log = log.With("locale", loc.Code, "voice", voice.Name, "decision", decision.String())
	log.Debug("relay: speaking utterance", "text", text)

	if err := w.session.EnsureConnected(ctx); err != nil {
		log.Error("relay: cannot reach voice channel, dropping utterance", "err", err)
		return observe.OutcomeConnectError, err
	}

	clip, err := w.synthesize(ctx, tts.Request{Text: text, LanguageCode: voice.LanguageCode, Voice: voice.Name})
	if err != nil {
		log.Error("relay: synthesis failed, dropping utterance", "err", err)
		return observe.OutcomeSynthError, err
	}

	return w.play(ctx, log, clip)
}

func (w *Worker) selectLocale(ctx context.Context, text string) speech.Locale {
	ctx, span := observe.StartSpan(ctx, "relay.language")
	defer span.End()
	loc := w.language.Select(ctx, text)
	span.SetAttributes(attribute.String("locale", loc.Code))
	return loc
}

func (w *Worker) synthesize(ctx context.Context, req tts.Request) (audio.Clip, error) {
	ctx, span := observe.StartSpan(ctx, "relay.synthesize",
		trace.WithAttributes(attribute.String("voice", req.Voice)),
	)
	defer span.End()

	start := time.Now()
	clip, err := w.synthesizer.Synthesize(ctx, req)
	w.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	observe.SpanError(span, err)
	return clip, err
}

func (w *Worker) play(ctx context.Context, log *slog.Logger, clip audio.Clip) (string, error) {
	ctx, span := observe.StartSpan(ctx, "relay.play")
	defer span.End()

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := audio.Decode(playCtx, clip)
	if err != nil {
		log.Error("relay: cannot decode synthesized audio, dropping utterance", "err", err)
		observe.SpanError(span, err)
		return observe.OutcomeDecodeError, err
	}

	start := time.Now()
	res := w.session.Play(playCtx, stream.Frames)
	cancel()
	w.metrics.PlaybackDuration.Record(ctx, time.Since(start).Seconds(),
		metricEvent(res.Event))
	span.SetAttributes(attribute.String("playback.event", res.Event.String()))

	switch res.Event {
	case audio.PlaybackFinished:
		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("relay: clip ended early", "err", err)
		}
		return observe.OutcomeSpoken, nil
	case audio.PlaybackDisconnected:
		log.Warn("relay: voice connection dropped during playback", "err", res.Err)
		err := res.Err
		if err == nil {
			err = errDisconnected
		}
		observe.SpanError(span, err)
		return observe.OutcomeDisconnected, err
	default:
		log.Error("relay: playback failed", "err", res.Err)
		observe.SpanError(span, res.Err)
		return observe.OutcomePlayError, res.Err
	}
}

var errDisconnected = errors.New("relay: disconnected during playback")
