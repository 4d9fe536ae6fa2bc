// Package dispatch executes the three terminal call actions. Every
// operation is idempotent at the platform level: before mutating the live
// call it waits out a short settle delay, re-reads the call's status, and
// aborts if another actor got there first. This is a best-effort guard
// against duplicate webhook deliveries racing across process instances, not
// a distributed lock.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/screenline/screenline/internal/callctl"
)

// Action tags. Each terminal action is claimed under exactly one tag in the
// session's fired-action set before the dispatcher runs.
const (
	TagIdentify                 = "identify"
	TagHumanPassthrough         = "human_passthrough"
	TagHumanPassthroughFallback = "human_passthrough_fallback"
	TagVoicemailDirect          = "voicemail_direct"
	TagVoicemailAfterPreamble   = "voicemail_after_preamble"
	TagHumanAfterPreamble       = "human_after_preamble"
)

// Result reports how a dispatch attempt ended.
type Result int

const (
	// Success: the mutation was issued and accepted.
	Success Result = iota
	// Aborted: another actor already resolved the call; nothing was mutated.
	// Not an error.
	Aborted
	// Failed: a genuine external fault unrelated to concurrency.
	Failed
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	// defaultSettleDelay lets a concurrently racing duplicate invocation win
	// first before we read the call status.
	defaultSettleDelay = 100 * time.Millisecond

	// defaultRecentMutationWindow: a call mutated within this window is
	// assumed to have been handled by a racing invocation.
	defaultRecentMutationWindow = 2 * time.Second

	// voicemailPauseSeconds is the pause before speaking the voicemail
	// message, sized to outlast a typical greeting and beep tail.
	voicemailPauseSeconds = 3
)

// Options tune the dispatcher's race guard. Zero values select defaults.
type Options struct {
	SettleDelay          time.Duration
	RecentMutationWindow time.Duration
	Now                  func() time.Time
}

// Dispatcher executes terminal actions against live calls through the
// call-control API.
type Dispatcher struct {
	api              callctl.API
	logger           *slog.Logger
	identifyMessage  string
	voicemailMessage string

	settleDelay          time.Duration
	recentMutationWindow time.Duration
	now                  func() time.Time
}

// New creates a dispatcher. identifyMessage is spoken by Identify,
// voicemailMessage by LeaveVoicemail.
func New(api callctl.API, logger *slog.Logger, identifyMessage, voicemailMessage string, opts Options) *Dispatcher {
	if opts.SettleDelay == 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.RecentMutationWindow == 0 {
		opts.RecentMutationWindow = defaultRecentMutationWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		api:                  api,
		logger:               logger.With("subsystem", "dispatch"),
		identifyMessage:      identifyMessage,
		voicemailMessage:     voicemailMessage,
		settleDelay:          opts.SettleDelay,
		recentMutationWindow: opts.RecentMutationWindow,
		now:                  opts.Now,
	}
}

// Identify speaks the identification message to the screening service and
// re-arms transcript monitoring; the call outcome is still unresolved at
// this point.
func (d *Dispatcher) Identify(ctx context.Context, callID string) (Result, error) {
	return d.run(ctx, callID, TagIdentify, callctl.Update{
		Speak:               d.identifyMessage,
		ResumeTranscription: true,
	})
}

// LeaveVoicemail stops transcript monitoring (so the system does not
// transcribe its own speech), waits past the greeting/beep tail, speaks the
// voicemail message, and ends the call.
func (d *Dispatcher) LeaveVoicemail(ctx context.Context, callID string) (Result, error) {
	return d.run(ctx, callID, "leave_voicemail", callctl.Update{
		StopTranscription: true,
		PauseSeconds:      voicemailPauseSeconds,
		Speak:             d.voicemailMessage,
		Hangup:            true,
	})
}

// Passthrough stops transcript monitoring and leaves the call open with no
// further automated speech; the humans hang up when they are done.
func (d *Dispatcher) Passthrough(ctx context.Context, callID string) (Result, error) {
	return d.run(ctx, callID, "passthrough", callctl.Update{
		StopTranscription: true,
	})
}

// apologyMessage is spoken when an unexpected internal fault leaves a call
// with no resolvable scenario; the call is never left hanging.
const apologyMessage = "We're sorry, a system error has occurred. Goodbye."

// ApologizeAndHangup is the last-resort action for an unrecoverable internal
// fault: speak a short apology and end the call.
func (d *Dispatcher) ApologizeAndHangup(ctx context.Context, callID string) (Result, error) {
	return d.run(ctx, callID, "apologize", callctl.Update{
		StopTranscription: true,
		Speak:             apologyMessage,
		Hangup:            true,
	})
}

// run applies the race guard and then issues the mutation.
func (d *Dispatcher) run(ctx context.Context, callID, op string, upd callctl.Update) (Result, error) {
	attempt := uuid.NewString()
	logger := d.logger.With("call_id", callID, "op", op, "attempt", attempt)

	// Let a racing duplicate win first.
	select {
	case <-time.After(d.settleDelay):
	case <-ctx.Done():
		return Aborted, nil
	}

	status, err := d.api.GetCall(ctx, callID)
	if err != nil {
		logger.Error("fetching call status failed", "error", err)
		return Failed, err
	}

	if status.Terminal() {
		logger.Info("call already terminal, aborting", "status", status.Status)
		return Aborted, nil
	}
	if !status.UpdatedAt.IsZero() && d.now().Sub(status.UpdatedAt) < d.recentMutationWindow {
		logger.Info("call mutated recently, assuming a racing actor handled it",
			"updated_at", status.UpdatedAt)
		return Aborted, nil
	}

	if err := d.api.UpdateCall(ctx, callID, upd); err != nil {
		if errors.Is(err, callctl.ErrConflict) {
			logger.Info("call modified concurrently, aborting")
			return Aborted, nil
		}
		logger.Error("call mutation failed", "error", err)
		return Failed, err
	}

	logger.Info("call action applied")
	return Success, nil
}
