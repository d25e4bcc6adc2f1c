package session

import (
	"context"
	"sync"

	"shipfilter/internal/filterspec"
)

// ConfirmationStore keeps the Tier B expansions confirmed in each session.
// The SQL-backed store.Store satisfies it as well.
type ConfirmationStore interface {
	Confirmations(ctx context.Context, sessionID string) (filterspec.Confirmations, error)
	RecordConfirmations(ctx context.Context, sessionID string, confirmations []filterspec.Confirmation) error
}

// MemoryStore is a process-local ConfirmationStore.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]filterspec.Confirmations
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]filterspec.Confirmations)}
}

// Confirmations returns a copy of the session's confirmations.
func (s *MemoryStore) Confirmations(_ context.Context, sessionID string) (filterspec.Confirmations, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(filterspec.Confirmations, len(s.sessions[sessionID]))
	for k, v := range s.sessions[sessionID] {
		out[k] = v
	}
	return out, nil
}

// RecordConfirmations adds confirmations; an existing entry is kept as is.
func (s *MemoryStore) RecordConfirmations(_ context.Context, sessionID string, confirmations []filterspec.Confirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.sessions[sessionID]
	if m == nil {
		m = make(filterspec.Confirmations)
		s.sessions[sessionID] = m
	}
	for _, c := range confirmations {
		if _, ok := m[c.ExpansionHash]; !ok {
			m[c.ExpansionHash] = c
		}
	}
	return nil
}

var _ ConfirmationStore = (*MemoryStore)(nil)
