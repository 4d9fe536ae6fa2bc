package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when no session exists for a call id.
var ErrNotFound = errors.New("session not found")

// Store owns all call sessions. Sessions are created on the first observed
// event for a call id and deleted when the call reaches a terminal lifecycle
// status. All other components read and mutate sessions only through the
// store.
type Store interface {
	// GetOrCreate returns the session for the call id, creating it if this is
	// the first event observed for the call. The second return value reports
	// whether the session was created by this call.
	GetOrCreate(ctx context.Context, callID string) (Snapshot, bool, error)

	// Get returns the session snapshot, or ErrNotFound.
	Get(ctx context.Context, callID string) (Snapshot, error)

	// AppendTranscript adds text to the call's sliding transcript window and
	// returns the updated window.
	AppendTranscript(ctx context.Context, callID, text string) (string, error)

	// SetMachineSignal records the latest AMD classification for the call.
	SetMachineSignal(ctx context.Context, callID string, sig MachineSignal) error

	// ClaimAction atomically verifies the session is still in the from state
	// and the tag is unfired, then marks the tag and transitions to the to
	// state. Returns false when a concurrent event already claimed the action
	// or advanced the state.
	ClaimAction(ctx context.Context, callID, tag string, from, to State) (bool, error)

	// Delete removes the session. Deleting an absent session is a no-op.
	Delete(ctx context.Context, callID string) error

	// Count returns the number of live sessions.
	Count(ctx context.Context) (int, error)

	// ActiveIDs returns the ids of all live sessions, sorted.
	ActiveIDs(ctx context.Context) ([]string, error)

	// PruneOlderThan deletes sessions created more than age ago and returns
	// how many were removed. A safety net for calls whose terminal lifecycle
	// event was never delivered.
	PruneOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// MemoryStore is the single-instance Store implementation backed by a mutex
// and a map. Deployments that run more than one instance should use the
// pgstore package instead so the claim step is shared.
type MemoryStore struct {
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*CallSession
}

// NewMemoryStore creates an empty in-memory session store. The now function
// is used for session creation timestamps; pass nil for time.Now.
func NewMemoryStore(logger *slog.Logger, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		logger:   logger.With("subsystem", "session-store"),
		now:      now,
		sessions: make(map[string]*CallSession),
	}
}

// GetOrCreate implements Store.
func (m *MemoryStore) GetOrCreate(_ context.Context, callID string) (Snapshot, bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[callID]
	if !ok {
		s = newCallSession(callID, m.now())
		m.sessions[callID] = s
	}
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("session created", "call_id", callID)
	}
	return s.snapshot(), !ok, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, callID string) (Snapshot, error) {
	m.mu.RLock()
	s, ok := m.sessions[callID]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return s.snapshot(), nil
}

// AppendTranscript implements Store.
func (m *MemoryStore) AppendTranscript(_ context.Context, callID, text string) (string, error) {
	m.mu.RLock()
	s, ok := m.sessions[callID]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return s.appendTranscript(text), nil
}

// SetMachineSignal implements Store.
func (m *MemoryStore) SetMachineSignal(_ context.Context, callID string, sig MachineSignal) error {
	m.mu.RLock()
	s, ok := m.sessions[callID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	s.setMachineSignal(sig)
	return nil
}

// ClaimAction implements Store.
func (m *MemoryStore) ClaimAction(_ context.Context, callID, tag string, from, to State) (bool, error) {
	m.mu.RLock()
	s, ok := m.sessions[callID]
	m.mu.RUnlock()
	if !ok {
		return false, ErrNotFound
	}
	return s.claimAction(tag, from, to), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, callID string) error {
	m.mu.Lock()
	_, ok := m.sessions[callID]
	delete(m.sessions, callID)
	m.mu.Unlock()

	if ok {
		m.logger.Debug("session deleted", "call_id", callID)
	}
	return nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

// ActiveIDs implements Store.
func (m *MemoryStore) ActiveIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	return ids, nil
}

// PruneOlderThan implements Store.
func (m *MemoryStore) PruneOlderThan(_ context.Context, age time.Duration) (int, error) {
	cutoff := m.now().Add(-age)

	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		if s.startedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Info("pruned stale sessions", "removed", removed)
	}
	return removed, nil
}

// StartPruneTicker runs PruneOlderThan on the given store at the interval
// until the context is cancelled.
func StartPruneTicker(ctx context.Context, store Store, interval, maxAge time.Duration, logger *slog.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := store.PruneOlderThan(ctx, maxAge); err != nil {
					logger.Error("session prune failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Ensure MemoryStore satisfies Store.
var _ Store = (*MemoryStore)(nil)
