package classify

import "testing"

func TestIsPreamble(t *testing.T) {
	c := New(nil)

	tests := []struct {
		text string
		want bool
	}{
		{"if you record your name and reason for calling", true},
		{"I'll see if this person is available", true},
		{"Record Your Name", true},
		{"hello, who is this?", false},
		{"please leave a message after the tone", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := c.IsPreamble(tt.text); got != tt.want {
			t.Errorf("IsPreamble(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsIntermediatePrompt(t *testing.T) {
	c := New(nil)

	tests := []struct {
		text string
		want bool
	}{
		{"thanks, stay on the line", true},
		{"thank you. one moment.", true},
		{"Please hold", true},
		// Too many words: a human sentence that merely contains "thanks".
		{"thanks for calling, this is a long sentence about something else entirely", false},
		{"hello, who is this?", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := c.IsIntermediatePrompt(tt.text); got != tt.want {
			t.Errorf("IsIntermediatePrompt(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsVoicemailGreeting(t *testing.T) {
	c := New(nil)

	tests := []struct {
		text string
		want bool
	}{
		{"please leave a message after the tone", true},
		{"your call has been forwarded to an automated voice messaging system", true},
		{"the person you are trying to reach is unavailable", true},
		{"sorry, I can't come to the phone right now, please leave a message", true},
		{"hi, you've reached Sarah's mailbox", true},
		{"hello, who is this?", false},
		{"hold on a second", false},
	}

	for _, tt := range tests {
		if got := c.IsVoicemailGreeting(tt.text); got != tt.want {
			t.Errorf("IsVoicemailGreeting(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsHumanSpeech(t *testing.T) {
	c := New(nil)

	tests := []struct {
		text string
		want bool
	}{
		{"hello, who is this?", true},
		{"hello?", true},
		{"hold on, let me turn the TV down", true},
		{"yes, this is Dave", true},
		{"what do you want?", true},
		// Voicemail greetings phrased like a person speaking.
		{"you've reached the voicemail of John, please leave a message", false},
		{"hi, you've reached Anna", false},
		{"sorry, I can't come to the phone right now", false},
		// Screening service speech is not human speech.
		{"if you record your name and reason for calling", false},
		{"thanks, stay on the line", false},
		{"please leave a message after the beep", false},
		// No interactive marker, no question.
		{"the quick brown fox", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := c.IsHumanSpeech(tt.text); got != tt.want {
			t.Errorf("IsHumanSpeech(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestPredicatesArePure(t *testing.T) {
	c := New(nil)
	const text = "please leave a message after the tone"

	// Same input must yield the same output across repeated calls; the
	// classifier holds no per-call state.
	for i := 0; i < 3; i++ {
		if !c.IsVoicemailGreeting(text) {
			t.Fatalf("call %d: IsVoicemailGreeting(%q) = false, want true", i, text)
		}
		if c.IsHumanSpeech(text) {
			t.Fatalf("call %d: IsHumanSpeech(%q) = true, want false", i, text)
		}
	}
}

func TestPreambleOverride(t *testing.T) {
	ps := DefaultPatternSet().WithPreamble([]string{"custom screening phrase"})
	c := New(ps)

	if !c.IsPreamble("this call uses a CUSTOM screening phrase today") {
		t.Error("override phrase should match")
	}
	if c.IsPreamble("record your name and reason for calling") {
		t.Error("default phrases should be replaced by the override")
	}
}

func TestSwapPatternSet(t *testing.T) {
	c := New(nil)

	if c.IsPreamble("totally novel announcement") {
		t.Fatal("unexpected match before swap")
	}

	next := DefaultPatternSet()
	next.Version = 2
	next.Preamble = append(next.Preamble, "totally novel announcement")
	c.Swap(next)

	if !c.IsPreamble("totally novel announcement") {
		t.Error("swapped pattern set should be in effect")
	}
	if c.Patterns().Version != 2 {
		t.Errorf("Patterns().Version = %d, want 2", c.Patterns().Version)
	}
}
