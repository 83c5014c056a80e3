// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/chat"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	turns         map[string][]chat.Turn // keyed by conversation ID
	ids           map[string]struct{}

	// SaveErr, when set, is returned by SaveTurn without saving anything.
	SaveErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*Conversation),
		turns:         make(map[string][]chat.Turn),
		ids:           make(map[string]struct{}),
	}
}

// SaveTurn stores a turn, creating and naming the conversation as needed.
func (m *MockStore) SaveTurn(ctx context.Context, conversationID string, turn chat.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	if _, dup := m.ids[turn.ID]; dup {
		return ErrDuplicateTurn
	}

	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	c, ok := m.conversations[conversationID]
	if !ok {
		c = &Conversation{ID: conversationID, CreatedAt: ts, UpdatedAt: ts}
		m.conversations[conversationID] = c
	}
	if turn.Role == chat.RoleUser && c.Title == "" {
		c.Title = Title(turn.Content)
	}
	if ts.After(c.UpdatedAt) {
		c.UpdatedAt = ts
	}

	m.ids[turn.ID] = struct{}{}
	m.turns[conversationID] = append(m.turns[conversationID], turn)
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListConversations returns conversations, most recently active first.
func (m *MockStore) ListConversations(ctx context.Context, limit int) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListTurns returns the latest turns in chronological order.
func (m *MockStore) ListTurns(ctx context.Context, conversationID string, limit int) ([]chat.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := append([]chat.Turn(nil), m.turns[conversationID]...)
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Timestamp.Before(turns[j].Timestamp)
	})
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MockStore)(nil)
)
