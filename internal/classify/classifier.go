package classify

import (
	"strings"
	"sync/atomic"
)

// intermediatePromptMaxWords is the word-count gate for intermediate prompt
// detection. Screening follow-ups are short; a longer sentence that happens
// to contain "thanks" is almost certainly a human talking.
const intermediatePromptMaxWords = 10

// Classifier evaluates the four call-progress predicates against a pattern
// set. The predicates are pure functions of their text argument; the only
// mutable state is the pattern set pointer, which can be swapped atomically
// when a new revision is published.
type Classifier struct {
	patterns atomic.Pointer[PatternSet]
}

// New creates a classifier over the given pattern set. A nil set falls back
// to the built-in default.
func New(ps *PatternSet) *Classifier {
	if ps == nil {
		ps = DefaultPatternSet()
	}
	c := &Classifier{}
	c.patterns.Store(ps)
	return c
}

// Patterns returns the pattern set currently in use.
func (c *Classifier) Patterns() *PatternSet {
	return c.patterns.Load()
}

// Swap replaces the active pattern set. Safe to call while classification is
// in flight; in-flight predicates finish against the old set.
func (c *Classifier) Swap(ps *PatternSet) {
	if ps == nil {
		return
	}
	c.patterns.Store(ps)
}

// IsPreamble reports whether text contains a screening-service preamble
// phrase.
func (c *Classifier) IsPreamble(text string) bool {
	return containsAny(strings.ToLower(text), c.patterns.Load().Preamble)
}

// IsIntermediatePrompt reports whether text is a short screening-service
// follow-up ("thanks", "stay on the line"). The word-count gate keeps longer
// human sentences that merely contain a follow-up phrase from matching.
func (c *Classifier) IsIntermediatePrompt(text string) bool {
	if len(strings.Fields(text)) > intermediatePromptMaxWords {
		return false
	}
	return containsAny(strings.ToLower(text), c.patterns.Load().IntermediatePrompt)
}

// IsVoicemailGreeting reports whether text contains a voicemail greeting,
// standard prompt, or carrier forwarding announcement.
func (c *Classifier) IsVoicemailGreeting(text string) bool {
	return containsAny(strings.ToLower(text), c.patterns.Load().VoicemailGreeting)
}

// IsHumanSpeech reports whether text reads as a live human speaking. It is
// computed by exclusion then inclusion: anything that matches the preamble,
// voicemail, intermediate-prompt, or human-like-voicemail lists is not human
// speech; after that, an interactive marker or a question mark co-occurring
// with an interrogative word counts as human.
func (c *Classifier) IsHumanSpeech(text string) bool {
	lower := strings.ToLower(text)
	ps := c.patterns.Load()

	if containsAny(lower, ps.Preamble) ||
		containsAny(lower, ps.VoicemailGreeting) ||
		c.IsIntermediatePrompt(text) ||
		containsAny(lower, ps.HumanLikeVoicemail) {
		return false
	}

	if containsAny(lower, ps.Interactive) {
		return true
	}

	if strings.Contains(lower, "?") && containsAny(lower, ps.Interrogative) {
		return true
	}

	return false
}

// containsAny reports whether s contains any of the given phrases.
func containsAny(s string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(s, phrase) {
			return true
		}
	}
	return false
}
