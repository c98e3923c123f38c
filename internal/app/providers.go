package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voicerelay/internal/config"
	"github.com/MrWong99/voicerelay/internal/observe"
	"github.com/MrWong99/voicerelay/internal/relay"
	"github.com/MrWong99/voicerelay/internal/resilience"
	"github.com/MrWong99/voicerelay/pkg/provider/caption"
	"github.com/MrWong99/voicerelay/pkg/provider/langdetect"
	"github.com/MrWong99/voicerelay/pkg/provider/tts"
)

// Providers holds the instantiated backends.
type Providers struct {
	TTS      tts.Provider
	Detector langdetect.Detector

	// Captioner and Links are optional.
	Captioner caption.ImageCaptioner
	Links     caption.LinkSummarizer

	// Breakers reports circuit breaker states per provider kind.
	Breakers map[string]func() map[string]resilience.State
}

func (p *Providers) breakerStates() any {
	out := make(map[string]map[string]string, len(p.Breakers))
	for kind, states := range p.Breakers {
		m := make(map[string]string)
		for name, s := range states() {
			m[name] = s.String()
		}
		out[kind] = m
	}
	return out
}

// BuildProviders instantiates the configured backends from reg. The tts and
// langdetect lists become fallback chains in the listed order.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	p := &Providers{Breakers: make(map[string]func() map[string]resilience.State)}

	if len(cfg.Providers.TTS) == 0 {
		return nil, errors.New("app: no tts provider configured")
	}
	var ttsChain *resilience.TTSFallback
	for _, entry := range cfg.Providers.TTS {
		prov, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create tts provider %q: %w", entry.Name, err)
		}
		if ttsChain == nil {
			ttsChain = resilience.NewTTSFallback(prov, entry.Name, fallbackConfig("tts", m))
		} else {
			ttsChain.AddFallback(entry.Name, prov)
		}
		slog.Info("app: tts provider ready", "name", entry.Name)
	}
	ttsChain.OnServed = func(name string) {
		m.RecordProviderRequest(context.Background(), name, "tts", "ok")
	}
	p.TTS = ttsChain
	p.Breakers["tts"] = ttsChain.Group().States

	if len(cfg.Providers.LangDetect) == 0 {
		return nil, errors.New("app: no language detector configured")
	}
	var detectChain *resilience.DetectFallback
	for _, entry := range cfg.Providers.LangDetect {
		d, err := reg.CreateDetector(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create language detector %q: %w", entry.Name, err)
		}
		d = relay.InstrumentDetector(d, entry.Name, m)
		if detectChain == nil {
			detectChain = resilience.NewDetectFallback(d, entry.Name, fallbackConfig("langdetect", m))
		} else {
			detectChain.AddFallback(entry.Name, d)
		}
		slog.Info("app: language detector ready", "name", entry.Name)
	}
	p.Detector = detectChain
	p.Breakers["langdetect"] = detectChain.Group().States

	if entry := cfg.Providers.Caption; entry.Enabled() {
		c, err := reg.CreateCaptioner(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create caption provider %q: %w", entry.Name, err)
		}
		p.Captioner = c
		slog.Info("app: image captions enabled", "name", entry.Name)
	}

	if entry := cfg.Providers.LinkPreview; entry.Enabled() {
		l, err := reg.CreateLinkSummarizer(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create link preview provider %q: %w", entry.Name, err)
		}
		p.Links = l
		slog.Info("app: link previews enabled", "name", entry.Name)
	}

	return p, nil
}

func fallbackConfig(kind string, m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), kind+"/"+name, from.String(), to.String())
				slog.Warn("resilience: circuit breaker state changed",
					"kind", kind, "provider", name, "from", from, "to", to)
			},
		},
	}
}
