package state

import (
	"sync"
	"time"
)

// Store persists conversation state per user. The manager is the only writer;
// implementations only need atomic whole-record swaps.
type Store interface {
	Get(userID string) (*ConversationState, bool)
	Set(userID string, state *ConversationState) error
	Delete(userID string) error
	// UserIDs lists every stored user for sweeping and gauges.
	UserIDs() []string
}

// MemoryStore is the default in-process store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*ConversationState
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*ConversationState)}
}

// Get returns the stored state for userID.
func (s *MemoryStore) Get(userID string) (*ConversationState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[userID]
	return st, ok
}

// Set stores state under userID.
func (s *MemoryStore) Set(userID string, state *ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = state
	return nil
}

// Delete removes userID's state.
func (s *MemoryStore) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

// UserIDs lists the stored users.
func (s *MemoryStore) UserIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.states))
	for id := range s.states {
		out = append(out, id)
	}
	return out
}

// SweepExpired removes whole records past their session expiry and returns
// the number of removed users.
func SweepExpired(store Store, now time.Time) int {
	removed := 0
	for _, id := range store.UserIDs() {
		st, ok := store.Get(id)
		if !ok {
			continue
		}
		if !st.ExpiresAt.IsZero() && now.After(st.ExpiresAt) {
			_ = store.Delete(id)
			removed++
		}
	}
	return removed
}
