package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestStore(now func() time.Time) *MemoryStore {
	return NewMemoryStore(slog.Default(), now)
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(nil)

	snap, created, err := store.GetOrCreate(ctx, "CA100")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !created {
		t.Error("first GetOrCreate should report created")
	}
	if snap.State != StateInitial {
		t.Errorf("new session state = %s, want initial", snap.State)
	}
	if snap.MachineSignal != SignalNone {
		t.Errorf("new session machine signal = %s, want none", snap.MachineSignal)
	}

	_, created, err = store.GetOrCreate(ctx, "CA100")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if created {
		t.Error("second GetOrCreate should not report created")
	}

	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(nil)
	if _, err := store.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestAppendTranscriptWindow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(nil)
	store.GetOrCreate(ctx, "CA200")

	w, err := store.AppendTranscript(ctx, "CA200", "hello")
	if err != nil {
		t.Fatalf("AppendTranscript: %v", err)
	}
	if w != "hello" {
		t.Errorf("window = %q, want %q", w, "hello")
	}

	w, _ = store.AppendTranscript(ctx, "CA200", "there")
	if w != "hello there" {
		t.Errorf("window = %q, want %q", w, "hello there")
	}

	// Overflow the cap; the oldest content must be dropped from the front.
	filler := strings.Repeat("x", TranscriptWindowCap)
	w, _ = store.AppendTranscript(ctx, "CA200", filler)
	if len(w) != TranscriptWindowCap {
		t.Errorf("window length = %d, want %d", len(w), TranscriptWindowCap)
	}
	if strings.Contains(w, "hello") {
		t.Error("oldest content should have been dropped")
	}
	if !strings.HasSuffix(w, "x") {
		t.Error("newest content should be at the end of the window")
	}
}

func TestClaimActionForwardOnly(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(nil)
	store.GetOrCreate(ctx, "CA300")

	// INITIAL -> MONITORING.
	ok, err := store.ClaimAction(ctx, "CA300", "identify", StateInitial, StateMonitoring)
	if err != nil || !ok {
		t.Fatalf("claim identify = (%v, %v), want (true, nil)", ok, err)
	}

	// A racing duplicate that still believes the state is INITIAL must lose.
	ok, _ = store.ClaimAction(ctx, "CA300", "voicemail_direct", StateInitial, StateVoicemailDelivered)
	if ok {
		t.Error("claim from stale INITIAL state should fail after transition")
	}

	// MONITORING -> terminal.
	ok, _ = store.ClaimAction(ctx, "CA300", "voicemail_after_preamble", StateMonitoring, StateVoicemailDelivered)
	if !ok {
		t.Fatal("claim voicemail_after_preamble should succeed")
	}

	// No transition out of a terminal state.
	ok, _ = store.ClaimAction(ctx, "CA300", "human_after_preamble", StateVoicemailDelivered, StatePassthrough)
	if ok {
		t.Error("terminal state must not transition again")
	}

	snap, _ := store.Get(ctx, "CA300")
	if snap.State != StateVoicemailDelivered {
		t.Errorf("final state = %s, want voicemail_delivered", snap.State)
	}
}

func TestClaimActionDuplicateTag(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(nil)
	store.GetOrCreate(ctx, "CA400")

	if ok, _ := store.ClaimAction(ctx, "CA400", "human_passthrough", StateInitial, StatePassthrough); !ok {
		t.Fatal("first claim should succeed")
	}
	if ok, _ := store.ClaimAction(ctx, "CA400", "human_passthrough", StateInitial, StatePassthrough); ok {
		t.Error("duplicate claim of the same tag should fail")
	}
}

func TestClaimActionConcurrent(t *testing.T) {
	// N concurrent duplicate deliveries: exactly one claim may win.
	ctx := context.Background()
	store := newTestStore(nil)
	store.GetOrCreate(ctx, "CA500")

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan bool, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.ClaimAction(ctx, "CA500", "voicemail_direct", StateInitial, StateVoicemailDelivered)
			if err != nil {
				t.Errorf("ClaimAction: %v", err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Errorf("%d claims won, want exactly 1", won)
	}
}

func TestMachineSignalLatestWins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(nil)
	store.GetOrCreate(ctx, "CA600")

	store.SetMachineSignal(ctx, "CA600", SignalMachineStart)
	store.SetMachineSignal(ctx, "CA600", SignalHuman)

	snap, _ := store.Get(ctx, "CA600")
	if snap.MachineSignal != SignalHuman {
		t.Errorf("machine signal = %s, want human (latest wins)", snap.MachineSignal)
	}
}

func TestDeleteAndPrune(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store := newTestStore(func() time.Time { return now })

	store.GetOrCreate(ctx, "old-1")
	store.GetOrCreate(ctx, "old-2")

	now = base.Add(2 * time.Hour)
	store.GetOrCreate(ctx, "fresh")

	if err := store.Delete(ctx, "old-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Deleting twice is a no-op.
	if err := store.Delete(ctx, "old-1"); err != nil {
		t.Fatalf("Delete again: %v", err)
	}

	removed, err := store.PruneOlderThan(ctx, time.Hour)
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if removed != 1 {
		t.Errorf("pruned %d sessions, want 1", removed)
	}

	ids, _ := store.ActiveIDs(ctx)
	if len(ids) != 1 || ids[0] != "fresh" {
		t.Errorf("ActiveIDs = %v, want [fresh]", ids)
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInitial, "initial"},
		{StateMonitoring, "ios26_monitoring"},
		{StatePassthrough, "passthrough"},
		{StateVoicemailDelivered, "voicemail_delivered"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}

	if StateInitial.Terminal() || StateMonitoring.Terminal() {
		t.Error("initial and monitoring are not terminal")
	}
	if !StatePassthrough.Terminal() || !StateVoicemailDelivered.Terminal() {
		t.Error("passthrough and voicemail_delivered are terminal")
	}
}
