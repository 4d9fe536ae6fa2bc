package resolver

import "github.com/screenline/screenline/internal/session"

// LifecycleEvent reports a call status change from the telephony platform.
type LifecycleEvent struct {
	CallID string
	Status string // initiated, ringing, in-progress, completed, failed, ...
}

// terminalLifecycleStatuses end the call and therefore the session.
var terminalLifecycleStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"canceled":  true,
	"no-answer": true,
	"busy":      true,
}

// Terminal reports whether this lifecycle event ends the call.
func (e LifecycleEvent) Terminal() bool {
	return terminalLifecycleStatuses[e.Status]
}

// MachineDetectionEvent carries the platform's answering-machine
// classification for a call.
type MachineDetectionEvent struct {
	CallID string
	Signal session.MachineSignal
}

// TranscriptEvent carries one chunk of live transcription. Text may be a
// partial fragment; Final marks the platform's end-of-utterance results.
type TranscriptEvent struct {
	CallID string
	Text   string
	Final  bool
}
