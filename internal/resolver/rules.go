package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/screenline/screenline/internal/dispatch"
	"github.com/screenline/screenline/internal/session"
)

// claimAndRun claims the action tag with the given state transition and, on
// winning the claim, fires the action. Losing the claim means a duplicate or
// concurrent event already resolved this branch; that is reported as a
// non-resolving decision so the caller stops evaluating without acting.
func (r *Resolver) claimAndRun(
	ctx context.Context,
	callID, ruleName, tag string,
	from, to session.State,
	act func(context.Context, string) (dispatch.Result, error),
) (*Decision, error) {
	won, err := r.store.ClaimAction(ctx, callID, tag, from, to)
	if err != nil {
		return nil, err
	}
	if !won {
		r.logger.Info("action already claimed, skipping",
			"call_id", callID, "rule", ruleName, "tag", tag)
		return &Decision{}, nil
	}

	res, err := act(ctx, callID)
	r.countOutcome(tag, res)
	if err != nil {
		r.logger.Error("action dispatch failed",
			"call_id", callID, "rule", ruleName, "tag", tag, "error", err)
	} else {
		r.logger.Info("scenario resolved",
			"call_id", callID, "rule", ruleName, "tag", tag, "result", res.String())
	}
	return &Decision{Resolved: true, Rule: ruleName, Tag: tag, Result: res}, nil
}

// ruleEarlyHuman: a freshly answered call where the audio is recognizably a
// person talking. The call is handed straight through. Triggers on human
// speech in the current chunk, in the accumulated window, or on the AMD
// human verdict. The chunk is checked on its own because the window check
// is not monotone: stale voicemail-like text in the window can suppress a
// genuinely human chunk. The AMD leg is guarded against the preamble, since
// detection platforms routinely grade a screening service as human.
func (r *Resolver) ruleEarlyHuman(ctx context.Context, ev TranscriptEvent, snap session.Snapshot, window string, elapsed time.Duration) (*Decision, error) {
	if snap.State != session.StateInitial {
		return nil, nil
	}
	if elapsed < earlyHumanMin || elapsed > earlyHumanMax {
		return nil, nil
	}
	amdHuman := snap.MachineSignal == session.SignalHuman && !r.classifier.IsPreamble(window)
	if !amdHuman &&
		!r.classifier.IsHumanSpeech(ev.Text) &&
		!r.classifier.IsHumanSpeech(window) {
		return nil, nil
	}
	return r.claimAndRun(ctx, ev.CallID, "early_human", dispatch.TagHumanPassthrough,
		session.StateInitial, session.StatePassthrough, r.actions.Passthrough)
}

// ruleDirectVoicemail: a voicemail system answered with no screening
// preamble in front of it. Triggers on a greeting phrase or on an AMD
// machine verdict, so a garbled greeting still resolves when the platform
// heard a machine. The message is left immediately; a greeting heard later
// than the window almost certainly followed a preamble we missed and is
// left to the monitoring branch.
func (r *Resolver) ruleDirectVoicemail(ctx context.Context, ev TranscriptEvent, snap session.Snapshot, window string, elapsed time.Duration) (*Decision, error) {
	if snap.State != session.StateInitial {
		return nil, nil
	}
	if elapsed > directVoicemailMax {
		return nil, nil
	}
	if r.classifier.IsPreamble(window) {
		return nil, nil
	}
	if !r.classifier.IsVoicemailGreeting(window) && !snap.MachineSignal.Machine() {
		return nil, nil
	}
	return r.claimAndRun(ctx, ev.CallID, "direct_voicemail", dispatch.TagVoicemailDirect,
		session.StateInitial, session.StateVoicemailDelivered, r.actions.LeaveVoicemail)
}

// rulePreamble: the screening service's preamble is playing. Identify to it
// and switch to monitoring; the call outcome is still open.
func (r *Resolver) rulePreamble(ctx context.Context, ev TranscriptEvent, snap session.Snapshot, window string, elapsed time.Duration) (*Decision, error) {
	if snap.State != session.StateInitial {
		return nil, nil
	}
	if !r.classifier.IsPreamble(window) {
		return nil, nil
	}
	return r.claimAndRun(ctx, ev.CallID, "preamble", dispatch.TagIdentify,
		session.StateInitial, session.StateMonitoring, r.actions.Identify)
}

// ruleRetroactivePreamble: a screening follow-up prompt this early in the
// call means the preamble itself played before transcription came up. Treat
// it as a preamble heard late.
func (r *Resolver) ruleRetroactivePreamble(ctx context.Context, ev TranscriptEvent, snap session.Snapshot, window string, elapsed time.Duration) (*Decision, error) {
	if snap.State != session.StateInitial {
		return nil, nil
	}
	if elapsed > retroPreambleMax {
		return nil, nil
	}
	if !r.classifier.IsIntermediatePrompt(ev.Text) {
		return nil, nil
	}
	return r.claimAndRun(ctx, ev.CallID, "retroactive_preamble", dispatch.TagIdentify,
		session.StateInitial, session.StateMonitoring, r.actions.Identify)
}

// ruleHumanFallback: the call has been up for a while with speech the
// classifier cannot place. A real voicemail system or screening service
// would have matched a pattern by now, so assume a person answered.
func (r *Resolver) ruleHumanFallback(ctx context.Context, ev TranscriptEvent, snap session.Snapshot, window string, elapsed time.Duration) (*Decision, error) {
	if snap.State != session.StateInitial {
		return nil, nil
	}
	if elapsed < fallbackMin || elapsed > fallbackMax {
		return nil, nil
	}
	if strings.TrimSpace(window) == "" {
		return nil, nil
	}
	if snap.MachineSignal.Machine() {
		return nil, nil
	}
	if r.classifier.IsPreamble(window) ||
		r.classifier.IsVoicemailGreeting(window) ||
		r.classifier.IsIntermediatePrompt(ev.Text) {
		return nil, nil
	}
	return r.claimAndRun(ctx, ev.CallID, "human_fallback", dispatch.TagHumanPassthroughFallback,
		session.StateInitial, session.StatePassthrough, r.actions.Passthrough)
}

// ruleMonitoring resolves a call that already identified to a screening
// preamble: a voicemail greeting means the screen rolled to voicemail, human
// speech means the callee picked up. Follow-up screening prompts are the
// service talking, not a resolution.
func (r *Resolver) ruleMonitoring(ctx context.Context, ev TranscriptEvent, snap session.Snapshot, window string, elapsed time.Duration) (*Decision, error) {
	if snap.State != session.StateMonitoring {
		return nil, nil
	}
	if r.classifier.IsIntermediatePrompt(ev.Text) {
		return nil, nil
	}

	if r.classifier.IsVoicemailGreeting(window) || snap.MachineSignal == session.SignalMachineEndBeep {
		return r.claimAndRun(ctx, ev.CallID, "monitoring", dispatch.TagVoicemailAfterPreamble,
			session.StateMonitoring, session.StateVoicemailDelivered, r.actions.LeaveVoicemail)
	}

	if r.classifier.IsHumanSpeech(ev.Text) {
		return r.claimAndRun(ctx, ev.CallID, "monitoring", dispatch.TagHumanAfterPreamble,
			session.StateMonitoring, session.StatePassthrough, r.actions.Passthrough)
	}

	return nil, nil
}
