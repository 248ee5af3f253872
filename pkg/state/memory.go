package state

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps job states in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]JobState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]JobState)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, jobID string) (JobState, bool, error) {
	if err := validJobID(jobID); err != nil {
		return JobState{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[jobID]
	return st, ok, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, jobID string, st JobState) error {
	if err := validJobID(jobID); err != nil {
		return err
	}
	st.JobID = jobID
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[jobID] = st
	return nil
}

// Delete implements Deleter.
func (m *MemoryStore) Delete(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, jobID)
	return nil
}

// Jobs returns the known job IDs in sorted order.
func (m *MemoryStore) Jobs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
