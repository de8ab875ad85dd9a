package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process. Used for local runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	states  map[string][]byte
	nowFunc func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: map[string][]byte{}, nowFunc: time.Now}
}

// Load returns a copy of the user's state.
func (m *MemoryStore) Load(ctx context.Context, userID string) (*State, error) {
	m.mu.Lock()
	raw, ok := m.states[userID]
	m.mu.Unlock()
	if !ok {
		return &State{UserID: userID}, nil
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &st, nil
}

// Save stores a copy of state.
func (m *MemoryStore) Save(ctx context.Context, state *State) error {
	state.UpdatedAt = m.nowFunc().UTC()
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	m.mu.Lock()
	m.states[state.UserID] = raw
	m.mu.Unlock()
	return nil
}

// Clear forgets the user's session.
func (m *MemoryStore) Clear(ctx context.Context, userID string) error {
	m.mu.Lock()
	delete(m.states, userID)
	m.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
