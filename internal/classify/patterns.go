package classify

// PatternSet holds the phrase lists the classifier matches against. Phrase
// lists are data rather than inline constants so they can be versioned,
// persisted, and swapped at runtime without a rebuild. All phrases are
// matched lower-cased by substring containment; matching is deliberately
// liberal, since a false positive on "something is present" costs less than
// a missed detection on lossy transcription.
type PatternSet struct {
	// Version identifies this revision of the pattern set. Version 1 is the
	// built-in default; sets loaded from the pattern store carry the stored
	// version.
	Version int64 `json:"version"`

	// Preamble phrases announce a call-screening service speaking on behalf
	// of the called party.
	Preamble []string `json:"preamble"`

	// IntermediatePrompt phrases are short follow-ups from the screening
	// service after the preamble. Only matched against short snippets.
	IntermediatePrompt []string `json:"intermediate_prompt"`

	// VoicemailGreeting phrases cover personal greetings, standard prompts,
	// and carrier/forwarding announcements.
	VoicemailGreeting []string `json:"voicemail_greeting"`

	// HumanLikeVoicemail phrases are voicemail greetings phrased in the first
	// person that would otherwise read as live human speech. They suppress
	// human-speech detection.
	HumanLikeVoicemail []string `json:"human_like_voicemail"`

	// Interactive phrases are markers of live two-way speech: greetings,
	// self-identification, requests to wait.
	Interactive []string `json:"interactive"`

	// Interrogative words indicate a live question when they co-occur with a
	// question mark.
	Interrogative []string `json:"interrogative"`
}

// DefaultPatternSet returns the built-in English pattern set.
func DefaultPatternSet() *PatternSet {
	return &PatternSet{
		Version: 1,
		Preamble: []string{
			"record your name and reason for calling",
			"name and reason for calling",
			"record your name",
			"reason for calling",
			"see if this person is available",
			"see if this person",
			"screening this call",
			"is using call screening",
		},
		IntermediatePrompt: []string{
			"thanks",
			"thank you",
			"stay on the line",
			"one moment",
			"please hold",
		},
		VoicemailGreeting: []string{
			"leave a message",
			"leave your message",
			"leave me a message",
			"after the tone",
			"after the beep",
			"at the tone",
			"at the beep",
			"voicemail",
			"voice mail",
			"mailbox",
			"your call has been forwarded",
			"call has been forwarded",
			"forwarded to an automated voice messaging system",
			"person you are trying to reach",
			"person you're trying to reach",
			"is unavailable",
			"is not available to take your call",
			"cannot take your call",
			"can't take your call",
			"unable to take your call",
			"can't come to the phone",
			"cannot come to the phone",
			"record your message",
			"when you have finished recording",
			"to leave a callback number",
			"please try your call again",
		},
		HumanLikeVoicemail: []string{
			"you've reached",
			"you have reached",
			"can't come to the phone",
			"cannot come to the phone",
			"not able to answer right now",
			"sorry i missed your call",
		},
		Interactive: []string{
			"hello",
			"who is this",
			"who's this",
			"who's calling",
			"who is calling",
			"hold on",
			"speaking",
			"this is",
			"how can i help",
			"can i help you",
		},
		Interrogative: []string{
			"who",
			"what",
			"why",
		},
	}
}

// WithPreamble returns a copy of the set with the preamble phrase list
// replaced. Used to apply the configuration override without mutating the
// shared default.
func (p *PatternSet) WithPreamble(phrases []string) *PatternSet {
	if len(phrases) == 0 {
		return p
	}
	cp := *p
	cp.Preamble = phrases
	return &cp
}
