// Package resolver classifies a call's progress from transcript and
// machine-detection events and fires exactly one terminal action per call.
//
// The five detection branches are an ordered rule table evaluated with
// short-circuit on each transcript event. Every branch claims its action tag
// and advances the session state atomically through the store BEFORE
// touching the live call, so a duplicate or concurrent event for the same
// call loses the claim instead of firing the action twice.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/screenline/screenline/internal/classify"
	"github.com/screenline/screenline/internal/dispatch"
	"github.com/screenline/screenline/internal/session"
)

// Timing windows for the detection branches, measured from session creation.
const (
	// earlyHumanMin/Max bound the direct-answer branch: too early and the
	// audio is usually ringback or channel noise, too late and the timing
	// fallback has already had its chance.
	earlyHumanMin = 5 * time.Second
	earlyHumanMax = 35 * time.Second

	// fallback window for a direct answer the classifier missed.
	fallbackMin = 20 * time.Second
	fallbackMax = 25 * time.Second

	// directVoicemailMax: a voicemail greeting later than this follows a
	// preamble we somehow missed, so the monitoring branch owns it.
	directVoicemailMax = 30 * time.Second

	// retroPreambleMax: hearing a screening follow-up this early means the
	// preamble itself played before transcription started.
	retroPreambleMax = 12 * time.Second
)

// Actions is the dispatcher surface the resolver drives.
type Actions interface {
	Identify(ctx context.Context, callID string) (dispatch.Result, error)
	LeaveVoicemail(ctx context.Context, callID string) (dispatch.Result, error)
	Passthrough(ctx context.Context, callID string) (dispatch.Result, error)
	ApologizeAndHangup(ctx context.Context, callID string) (dispatch.Result, error)
}

// Decision is the outcome of evaluating one transcript event.
type Decision struct {
	// Resolved is true when a branch matched and claimed its action.
	Resolved bool
	// Rule names the branch that resolved, empty when monitoring continues.
	Rule string
	// Tag is the claimed action tag.
	Tag string
	// Result is the dispatch result for the claimed action.
	Result dispatch.Result
}

// keepMonitoring is the decision when no branch matched.
var keepMonitoring = Decision{}

// Resolver is the scenario state machine. All call state lives in the
// injected session store; the resolver itself only holds counters.
type Resolver struct {
	store      session.Store
	classifier *classify.Classifier
	actions    Actions
	logger     *slog.Logger
	now        func() time.Time
	rules      []rule

	mu       sync.Mutex
	outcomes map[string]uint64 // resolved scenarios by action tag
	results  map[string]uint64 // dispatch results by tag/result
}

// rule is one branch of the priority table. eval returns nil when the branch
// does not apply; the first non-nil decision wins.
type rule struct {
	name string
	eval func(ctx context.Context, ev TranscriptEvent, snap session.Snapshot, window string, elapsed time.Duration) (*Decision, error)
}

// New creates a resolver. The now function is used for elapsed-time windows;
// pass nil for time.Now.
func New(store session.Store, classifier *classify.Classifier, actions Actions, logger *slog.Logger, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	r := &Resolver{
		store:      store,
		classifier: classifier,
		actions:    actions,
		logger:     logger.With("subsystem", "resolver"),
		now:        now,
		outcomes:   make(map[string]uint64),
		results:    make(map[string]uint64),
	}

	// Priority order is load-bearing: recognized human speech outranks
	// everything, pattern matches outrank the blind timing fallback, and
	// monitoring resolution runs last because it requires the monitoring
	// state.
	r.rules = []rule{
		{"early_human", r.ruleEarlyHuman},
		{"direct_voicemail", r.ruleDirectVoicemail},
		{"preamble", r.rulePreamble},
		{"retroactive_preamble", r.ruleRetroactivePreamble},
		{"human_fallback", r.ruleHumanFallback},
		{"monitoring", r.ruleMonitoring},
	}
	return r
}

// HandleLifecycle processes a call status change. Terminal statuses delete
// the session; anything else ensures one exists so the elapsed-time clock
// starts at the first observed event.
func (r *Resolver) HandleLifecycle(ctx context.Context, ev LifecycleEvent) error {
	if ev.Terminal() {
		if err := r.store.Delete(ctx, ev.CallID); err != nil {
			return fmt.Errorf("deleting session %s: %w", ev.CallID, err)
		}
		r.logger.Info("call ended, session discarded", "call_id", ev.CallID, "status", ev.Status)
		return nil
	}

	if _, _, err := r.store.GetOrCreate(ctx, ev.CallID); err != nil {
		return fmt.Errorf("creating session %s: %w", ev.CallID, err)
	}
	return nil
}

// HandleMachineDetection records the AMD classification on the session and
// returns. A machine signal alone never resolves a scenario: it cannot tell
// a screening preamble from a plain voicemail greeting.
func (r *Resolver) HandleMachineDetection(ctx context.Context, ev MachineDetectionEvent) error {
	if _, _, err := r.store.GetOrCreate(ctx, ev.CallID); err != nil {
		return fmt.Errorf("creating session %s: %w", ev.CallID, err)
	}
	if err := r.store.SetMachineSignal(ctx, ev.CallID, ev.Signal); err != nil {
		return fmt.Errorf("recording machine signal for %s: %w", ev.CallID, err)
	}
	r.logger.Debug("machine detection recorded", "call_id", ev.CallID, "signal", ev.Signal.String())
	return nil
}

// HandleTranscript appends the text to the call's transcript window and
// evaluates the rule table. It always returns a decision; an internal panic
// below the classification boundary is degraded to "no detection this
// round" so a call is never abandoned by a fault, and a fault at this
// boundary itself falls back to the apology action.
func (r *Resolver) HandleTranscript(ctx context.Context, ev TranscriptEvent) (dec Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("resolver panic, terminating call with apology",
				"call_id", ev.CallID, "panic", rec)
			dec, err = keepMonitoring, nil
			if res, aerr := r.actions.ApologizeAndHangup(ctx, ev.CallID); aerr != nil {
				r.logger.Error("apology action failed", "call_id", ev.CallID, "result", res.String(), "error", aerr)
			}
		}
	}()

	// Late-initialize: a transcript can arrive before any lifecycle event.
	snap, _, err := r.store.GetOrCreate(ctx, ev.CallID)
	if err != nil {
		return keepMonitoring, fmt.Errorf("creating session %s: %w", ev.CallID, err)
	}

	if snap.State.Terminal() {
		// Already resolved; transcription stop is in flight.
		return keepMonitoring, nil
	}

	window, err := r.store.AppendTranscript(ctx, ev.CallID, ev.Text)
	if err != nil {
		return keepMonitoring, fmt.Errorf("appending transcript for %s: %w", ev.CallID, err)
	}

	elapsed := r.now().Sub(snap.StartedAt)
	return r.evaluate(ctx, ev, snap, window, elapsed), nil
}

// evaluate walks the rule table in priority order. A panic inside a rule
// (classifier or otherwise) is logged and treated as no detection this
// round: detection fails open.
func (r *Resolver) evaluate(ctx context.Context, ev TranscriptEvent, snap session.Snapshot, window string, elapsed time.Duration) (dec Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("classification fault, skipping detection this round",
				"call_id", ev.CallID, "panic", rec)
			dec = keepMonitoring
		}
	}()

	for _, rl := range r.rules {
		d, err := rl.eval(ctx, ev, snap, window, elapsed)
		if err != nil {
			r.logger.Error("rule evaluation failed",
				"call_id", ev.CallID, "rule", rl.name, "error", err)
			return keepMonitoring
		}
		if d != nil {
			return *d
		}
	}

	r.logger.Debug("no detection yet",
		"call_id", ev.CallID,
		"state", snap.State.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return keepMonitoring
}

// OutcomeCounts returns resolved-scenario counts by action tag.
func (r *Resolver) OutcomeCounts() map[string]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]uint64, len(r.outcomes))
	for k, v := range r.outcomes {
		out[k] = v
	}
	return out
}

// ActionResultCounts returns dispatch result counts keyed "tag/result".
func (r *Resolver) ActionResultCounts() map[string]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]uint64, len(r.results))
	for k, v := range r.results {
		out[k] = v
	}
	return out
}

func (r *Resolver) countOutcome(tag string, res dispatch.Result) {
	r.mu.Lock()
	r.outcomes[tag]++
	r.results[tag+"/"+res.String()]++
	r.mu.Unlock()
}
