package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"bizassist/pkg"
)

// MemoryConversationStore keeps conversations in process memory
type MemoryConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*pkg.ConversationState
	ttl           time.Duration
}

// NewMemoryConversationStore creates a store; conversations idle longer than
// ttl are dropped on read, ttl <= 0 keeps them forever
func NewMemoryConversationStore(ttl time.Duration) *MemoryConversationStore {
	return &MemoryConversationStore{
		conversations: make(map[string]*pkg.ConversationState),
		ttl:           ttl,
	}
}

// Get returns a copy of the conversation
func (m *MemoryConversationStore) Get(ctx context.Context, id string) (*pkg.ConversationState, error) {
	m.mu.RLock()
	state, ok := m.conversations[id]
	if !ok {
		m.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	if !m.expired(state) {
		out := cloneState(state)
		m.mu.RUnlock()
		return out, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	// an Append may have refreshed it between the two locks
	if state, ok = m.conversations[id]; ok && !m.expired(state) {
		return cloneState(state), nil
	}
	delete(m.conversations, id)
	return nil, fmt.Errorf("%w: %s expired", ErrConversationNotFound, id)
}

func (m *MemoryConversationStore) expired(state *pkg.ConversationState) bool {
	return m.ttl > 0 && time.Since(state.UpdatedAt) > m.ttl
}

// Create stores a new conversation
func (m *MemoryConversationStore) Create(ctx context.Context, state *pkg.ConversationState) error {
	if state.ID == "" {
		return fmt.Errorf("conversation id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.conversations[state.ID]; exists {
		return fmt.Errorf("%w: %s", ErrConversationExists, state.ID)
	}

	now := time.Now()
	stored := cloneState(state)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.conversations[state.ID] = stored
	return nil
}

// Append adds the turns of a finished turn in one step
func (m *MemoryConversationStore) Append(ctx context.Context, id string, update pkg.ConversationUpdate) (*pkg.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}

	state.Turns = append(state.Turns, update.Turns...)
	if update.LastIntent != "" {
		state.LastIntent = update.LastIntent
	}
	for _, aid := range update.AppointmentIDs {
		if !slices.Contains(state.AppointmentIDs, aid) {
			state.AppointmentIDs = append(state.AppointmentIDs, aid)
		}
	}
	state.UpdatedAt = time.Now()
	return cloneState(state), nil
}

// Len returns the number of stored conversations
func (m *MemoryConversationStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conversations)
}

func cloneState(s *pkg.ConversationState) *pkg.ConversationState {
	out := *s
	out.Turns = slices.Clone(s.Turns)
	out.AppointmentIDs = slices.Clone(s.AppointmentIDs)
	return &out
}
