package checkpoint

import (
	"context"
	"sync"
	"time"

	"medical-triage-agent/internal/triage"
)

// Memory keeps checkpoints in process memory. States are cloned on the way in
// and out so callers never share a pointer with the store.
type Memory struct {
	mu     sync.RWMutex
	states map[string]*triage.CaseState
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		states: make(map[string]*triage.CaseState),
		now:    time.Now,
	}
}

func (m *Memory) Get(_ context.Context, threadID string) (*triage.CaseState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[threadID]
	if !ok {
		return nil, triage.ErrThreadNotFound
	}
	return st.Clone(), nil
}

func (m *Memory) Put(_ context.Context, st *triage.CaseState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if prev, ok := m.states[st.ThreadID]; ok {
		current = prev.Version
	}
	if st.Version != current {
		return triage.ErrConflict
	}

	st.Version++
	st.UpdatedAt = m.now()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = st.UpdatedAt
	}
	m.states[st.ThreadID] = st.Clone()
	return nil
}

// Sweep drops threads that have not been written for longer than idle.
// Threads waiting for an answer are kept.
func (m *Memory) Sweep(_ context.Context, idle time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idle)
	removed := 0
	for id, st := range m.states {
		if st.UpdatedAt.Before(cutoff) && !st.Suspended() {
			delete(m.states, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of live threads.
func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states), nil
}
