package speech

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Locale is one supported language bucket: the synthesis language code, the
// voice used when no per-speaker voice applies, and the introduction
// templates.
//
// Templates use the placeholders {speaker} and {text}.
type Locale struct {
	// Code is the synthesis language code, e.g. "sv-SE".
	Code string

	// Voice is the default voice for this locale, e.g. "sv-SE-Wavenet-C".
	Voice string

	// Intro renders a spoken introduction, e.g. "{speaker} säger: {text}".
	Intro string

	// Image renders an image attribution, e.g. "Bild skickad av {speaker}: {text}".
	Image string
}

// Base returns the base language of the locale code ("sv" for "sv-SE").
func (l Locale) Base() language.Base {
	tag, err := language.Parse(l.Code)
	if err != nil {
		return language.Base{}
	}
	base, _ := tag.Base()
	return base
}

// Catalog is the set of locales the relay can speak. Exactly one locale is
// primary and one is secondary; further locales are optional.
type Catalog struct {
	primary   Locale
	secondary Locale
	extra     []Locale
}

// DefaultCatalog returns the Swedish-primary, English-secondary catalog.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog(
		Locale{
			Code:  "sv-SE",
			Voice: "sv-SE-Wavenet-C",
			Intro: "{speaker} säger: {text}",
			Image: "Bild skickad av {speaker}: {text}",
		},
		Locale{
			Code:  "en-US",
			Voice: "en-US-Wavenet-C",
			Intro: "{speaker} says: {text}",
			Image: "Image sent by {speaker}: {text}",
		},
	)
	return c
}

// NewCatalog builds a catalog from the primary and secondary locales plus any
// extra locales. Every locale needs a parseable code, a voice and both
// templates.
func NewCatalog(primary, secondary Locale, extra ...Locale) (*Catalog, error) {
	all := append([]Locale{primary, secondary}, extra...)
	for i, l := range all {
		if _, err := language.Parse(l.Code); err != nil {
			return nil, fmt.Errorf("speech: locale %d: invalid code %q: %w", i, l.Code, err)
		}
		if l.Voice == "" {
			return nil, fmt.Errorf("speech: locale %q: voice is required", l.Code)
		}
		if !strings.Contains(l.Intro, "{text}") || !strings.Contains(l.Image, "{text}") {
			return nil, fmt.Errorf("speech: locale %q: templates must contain {text}", l.Code)
		}
	}
	return &Catalog{primary: primary, secondary: secondary, extra: extra}, nil
}

// Primary returns the primary locale.
func (c *Catalog) Primary() Locale { return c.primary }

// Secondary returns the secondary locale.
func (c *Catalog) Secondary() Locale { return c.secondary }

// IsPrimary reports whether l is the primary locale.
func (c *Catalog) IsPrimary(l Locale) bool { return l.Code == c.primary.Code }

// Match maps a detected language tag to a locale bucket. Tags that do not
// parse, are undetermined, or name a language with no configured locale map
// to the secondary locale.
func (c *Catalog) Match(tag string) Locale {
	t, err := language.Parse(tag)
	if err != nil || t == language.Und {
		return c.secondary
	}
	base, conf := t.Base()
	if conf == language.No {
		return c.secondary
	}
	for _, l := range c.all() {
		if l.Base() == base {
			return l
		}
	}
	return c.secondary
}

func (c *Catalog) all() []Locale {
	return append([]Locale{c.primary, c.secondary}, c.extra...)
}
