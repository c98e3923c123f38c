// Package app wires the voice relay subsystems into a running application.
//
// New builds the queue, the speech pipeline, the connection lifecycle
// manager, the playback worker and the chat ingester from a [config.Config]
// and a set of [Providers]. Run serves the worker and the HTTP endpoints
// until the context ends; Shutdown releases the voice connection.
//
// For testing, inject the queue, metrics or readiness checks with
// functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicerelay/internal/config"
	"github.com/MrWong99/voicerelay/internal/discord"
	"github.com/MrWong99/voicerelay/internal/health"
	"github.com/MrWong99/voicerelay/internal/observe"
	"github.com/MrWong99/voicerelay/internal/queue"
	"github.com/MrWong99/voicerelay/internal/relay"
	"github.com/MrWong99/voicerelay/internal/session"
	"github.com/MrWong99/voicerelay/internal/speech"
	"github.com/MrWong99/voicerelay/pkg/audio"
)

// httpShutdownTimeout bounds the graceful stop of the HTTP server.
const httpShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	platform  audio.Platform

	metrics   *observe.Metrics
	levelVar  *slog.LevelVar
	readiness []health.Checker

	queue    *queue.Queue
	catalog  *speech.Catalog
	voices   *speech.VoiceResolver
	manager  *session.Manager
	worker   *relay.Worker
	ingester *discord.Ingester
	health   *health.Handler

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithQueue injects the utterance queue. The caller owns its depth hook.
func WithQueue(q *queue.Queue) Option {
	return func(a *App) { a.queue = q }
}

// WithMetrics injects the metric instruments instead of the global ones.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.Reload] change the log level at runtime.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithReadiness adds /readyz checks.
func WithReadiness(checks ...health.Checker) Option {
	return func(a *App) { a.readiness = append(a.readiness, checks...) }
}

// New wires the relay. platform is the voice backend (usually the Discord
// bot's); providers come from [BuildProviders].
func New(cfg *config.Config, platform audio.Platform, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.TTS == nil || providers.Detector == nil {
		return nil, errors.New("app: tts and language detection providers are required")
	}
	a := &App{cfg: cfg, providers: providers, platform: platform}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.queue == nil {
		m := a.metrics
		a.queue = queue.New(queue.WithDepthHook(func(delta int) {
			m.QueueDepth.Add(context.Background(), int64(delta))
		}))
	}

	catalog, err := buildCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: locales: %w", err)
	}
	a.catalog = catalog
	a.voices = speech.NewVoiceResolver(catalog, cfg.Voices)

	a.manager = session.NewManager(session.ManagerConfig{
		Platform:     platform,
		ChannelID:    cfg.Discord.VoiceChannelID,
		IdleTimeout:  cfg.Relay.IdleTimeout,
		OnTransition: a.onTransition,
	})
	a.closers = append(a.closers, a.manager.Close)

	a.worker = relay.New(relay.Config{
		Queue:        a.queue,
		Language:     speech.NewLanguageSelector(providers.Detector, catalog, cfg.Relay.ShortTextThreshold),
		Voices:       a.voices,
		Continuity:   speech.NewTracker(cfg.Relay.ContinuityWindow),
		Formatter:    speech.Formatter{Announce: cfg.Discord.Announce()},
		Synthesizer:  providers.TTS,
		Session:      a.manager,
		PollInterval: cfg.Relay.PollInterval,
		Metrics:      a.metrics,
	})

	a.ingester = discord.NewIngester(discord.IngestConfig{
		GuildID:         cfg.Discord.GuildID,
		VoiceChannelID:  cfg.Discord.VoiceChannelID,
		TextChannelIDs:  cfg.Discord.TextChannelIDs,
		LinkTemplate:    cfg.Discord.LinkTemplate,
		CaptionLanguage: catalog.Primary().Code,
		Queue:           a.queue,
		Captioner:       providers.Captioner,
		Links:           providers.Links,
		Metrics:         a.metrics,
	})

	a.health = health.New(a.readiness...)
	a.health.AddReporter(health.Reporter{Name: "worker", Report: func() any { return a.worker.Stats() }})
	a.health.AddReporter(health.Reporter{Name: "connection", Report: func() any { return a.manager.State().String() }})
	a.health.AddReporter(health.Reporter{Name: "queue", Report: func() any { return a.queue.Len() }})
	if len(providers.Breakers) > 0 {
		a.health.AddReporter(health.Reporter{Name: "breakers", Report: providers.breakerStates})
	}

	slog.Info("app: relay wired",
		"voice_channel_id", cfg.Discord.VoiceChannelID,
		"primary_locale", catalog.Primary().Code,
		"secondary_locale", catalog.Secondary().Code,
		"voices", len(cfg.Voices),
		"captions", providers.Captioner != nil,
		"link_previews", providers.Links != nil,
	)
	return a, nil
}

// buildCatalog turns the configured locales into a [speech.Catalog].
func buildCatalog(cfg *config.Config) (*speech.Catalog, error) {
	toLocale := func(l config.LocaleConfig) speech.Locale {
		return speech.Locale{Code: l.Code, Voice: l.Voice, Intro: l.Intro, Image: l.Image}
	}
	primary, ok := cfg.Locale(cfg.Relay.PrimaryLocale)
	if !ok {
		return nil, fmt.Errorf("primary locale %q not configured", cfg.Relay.PrimaryLocale)
	}
	secondary, ok := cfg.Locale(cfg.Relay.SecondaryLocale)
	if !ok {
		return nil, fmt.Errorf("secondary locale %q not configured", cfg.Relay.SecondaryLocale)
	}
	var extra []speech.Locale
	for _, l := range cfg.Locales {
		if l.Code != primary.Code && l.Code != secondary.Code {
			extra = append(extra, toLocale(l))
		}
	}
	return speech.NewCatalog(toLocale(primary), toLocale(secondary), extra...)
}

// Queue returns the utterance queue.
func (a *App) Queue() *queue.Queue { return a.queue }

// Ingester returns the chat ingester to attach to the Discord session.
func (a *App) Ingester() *discord.Ingester { return a.ingester }

// Worker returns the playback worker.
func (a *App) Worker() *relay.Worker { return a.worker }

// Connection returns the voice connection lifecycle manager.
func (a *App) Connection() *session.Manager { return a.manager }

// Handler returns the HTTP handler serving probes, status and metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	return observe.Middleware(a.metrics)(mux)
}

// Run starts the playback worker and, unless disabled, the HTTP server. It
// blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.worker.Run(ctx) })

	if addr := a.cfg.Server.ListenAddr; addr != "" && addr != "-" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("app: http server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}

// Reload applies the hot-reloadable parts of d. Sections that need a restart
// are logged. It has the shape of a [config.ReloadFunc].
func (a *App) Reload(next *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.VoicesChanged {
		a.voices.SetVoices(next.Voices)
		for _, vc := range d.VoiceChanges {
			slog.Info("app: voice override updated",
				"speaker_id", vc.SpeakerID, "old", vc.Old, "new", vc.New,
				"added", vc.Added, "removed", vc.Removed)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: configuration changes need a restart", "sections", d.RestartRequired)
	}
}

// Shutdown releases the voice connection and runs the remaining closers. It
// stops early with the context error if ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers), "pending", a.queue.Len())
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

func (a *App) onTransition(from, to session.State, reason string) {
	a.metrics.RecordConnectionTransition(context.Background(), from.String(), to.String(), reason)
	slog.Info("session: voice connection transition", "from", from, "to", to, "reason", reason)
}

// SlogLevel maps a configured log level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
