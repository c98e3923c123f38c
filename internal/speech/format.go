package speech

import "strings"

// Formatter renders the text that is sent to synthesis.
type Formatter struct {
	// Announce enables speaker introductions. When false every utterance is
	// spoken bare, regardless of the continuity decision.
	Announce bool
}

// Format returns the utterance text for the given locale and decision.
// Continuations are returned unchanged; introductions are rendered through the
// locale's intro or image template.
func (f Formatter) Format(text, speakerName string, imageDerived bool, loc Locale, d Decision) string {
	if !f.Announce || d == Continuation {
		return text
	}
	tmpl := loc.Intro
	if imageDerived {
		tmpl = loc.Image
	}
	return strings.NewReplacer("{speaker}", speakerName, "{text}", text).Replace(tmpl)
}
