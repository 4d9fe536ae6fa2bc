package session

import (
	"sync"
	"time"
)

// State represents the screening lifecycle state of a call.
type State int

const (
	StateInitial            State = iota // no scenario resolved yet
	StateMonitoring                      // preamble heard, waiting for the screening outcome
	StatePassthrough                     // terminal: humans connected, automation stopped
	StateVoicemailDelivered              // terminal: voicemail message left
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateMonitoring:
		return "ios26_monitoring"
	case StatePassthrough:
		return "passthrough"
	case StateVoicemailDelivered:
		return "voicemail_delivered"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is an end state.
func (s State) Terminal() bool {
	return s == StatePassthrough || s == StateVoicemailDelivered
}

// MachineSignal is the coarse answering-machine-detection classification
// computed by the telephony platform in parallel with transcription. It is
// corroborating evidence only; it cannot distinguish a screening preamble
// from a plain voicemail greeting.
type MachineSignal int

const (
	SignalNone MachineSignal = iota // no detection event received yet
	SignalMachineStart
	SignalMachineEndBeep
	SignalHuman
	SignalFax
	SignalUnknown
)

func (m MachineSignal) String() string {
	switch m {
	case SignalNone:
		return "none"
	case SignalMachineStart:
		return "machine_start"
	case SignalMachineEndBeep:
		return "machine_end_beep"
	case SignalHuman:
		return "human"
	case SignalFax:
		return "fax"
	case SignalUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Machine reports whether the signal indicates an answering machine.
func (m MachineSignal) Machine() bool {
	return m == SignalMachineStart || m == SignalMachineEndBeep
}

// ParseMachineSignal maps a platform AMD answer string to a MachineSignal.
// Unrecognized values map to SignalUnknown.
func ParseMachineSignal(s string) MachineSignal {
	switch s {
	case "machine_start":
		return SignalMachineStart
	case "machine_end_beep":
		return SignalMachineEndBeep
	case "human":
		return SignalHuman
	case "fax":
		return SignalFax
	default:
		return SignalUnknown
	}
}

// TranscriptWindowCap is the maximum size in bytes of the per-call transcript
// sliding window. Patterns can span transcription chunk boundaries, so recent
// text is kept; older text is dropped from the front.
const TranscriptWindowCap = 300

// Snapshot is a point-in-time copy of a call session's observable state.
// Components outside the store work with snapshots; they never hold a live
// reference to the session across events.
type Snapshot struct {
	ID            string
	State         State
	StartedAt     time.Time
	Window        string
	MachineSignal MachineSignal
}

// CallSession is the in-memory representation of one screened call. All
// access goes through its methods under the session lock; the Store owns
// every instance.
type CallSession struct {
	id        string
	startedAt time.Time

	mu            sync.Mutex
	state         State
	window        string
	machineSignal MachineSignal
	firedActions  map[string]struct{}
}

func newCallSession(id string, now time.Time) *CallSession {
	return &CallSession{
		id:           id,
		startedAt:    now,
		state:        StateInitial,
		firedActions: make(map[string]struct{}),
	}
}

// snapshot returns a copy of the session's observable state.
func (s *CallSession) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.id,
		State:         s.state,
		StartedAt:     s.startedAt,
		Window:        s.window,
		MachineSignal: s.machineSignal,
	}
}

// appendTranscript adds text to the sliding window and returns the updated
// window contents.
func (s *CallSession) appendTranscript(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.window == "" {
		s.window = text
	} else {
		s.window = s.window + " " + text
	}
	if len(s.window) > TranscriptWindowCap {
		s.window = s.window[len(s.window)-TranscriptWindowCap:]
	}
	return s.window
}

// setMachineSignal records the latest AMD classification, overwriting any
// previous value.
func (s *CallSession) setMachineSignal(sig MachineSignal) {
	s.mu.Lock()
	s.machineSignal = sig
	s.mu.Unlock()
}

// claimAction atomically checks that the session is still in the expected
// state and that the action tag has not fired, then marks the tag and
// advances the state. Returns false if another event already claimed the
// action or moved the state. State only moves forward; a claim that would
// move it backward is rejected.
func (s *CallSession) claimAction(tag string, from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != from || to < s.state {
		return false
	}
	if _, fired := s.firedActions[tag]; fired {
		return false
	}
	s.firedActions[tag] = struct{}{}
	s.state = to
	return true
}
