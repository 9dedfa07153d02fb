// ABOUTME: Mock ConversationStore implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject persistence failures

package store

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory ConversationStore implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation // keyed by user ID

	// FailWith, when set, is returned by every mutating call.
	FailWith error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
	}
}

// GetConversation returns a copy of the stored conversation.
func (m *MockStore) GetConversation(ctx context.Context, userID string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

// ResetConversation clears turns and sets LastActive.
func (m *MockStore) ResetConversation(ctx context.Context, userID string, lastActive time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}
	m.conversations[userID] = &Conversation{UserID: userID, LastActive: lastActive}
	return nil
}

// AppendTurn adds a turn, creating the conversation if needed.
func (m *MockStore) AppendTurn(ctx context.Context, userID string, turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}
	c, ok := m.conversations[userID]
	if !ok {
		c = &Conversation{UserID: userID}
		m.conversations[userID] = c
	}
	c.Turns = append(c.Turns, turn)
	c.LastActive = turn.At
	return nil
}

// DeleteConversation removes the conversation.
func (m *MockStore) DeleteConversation(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}
	delete(m.conversations, userID)
	return nil
}

// ListIdleSince returns users last active before cutoff.
func (m *MockStore) ListIdleSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []string
	for id, c := range m.conversations {
		if c.LastActive.Before(cutoff) {
			users = append(users, id)
		}
	}
	return users, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time checks
var (
	_ ConversationStore = (*MockStore)(nil)
	_ ConversationStore = (*SQLiteStore)(nil)
)
