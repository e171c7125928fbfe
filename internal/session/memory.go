package session

import (
	"context"
	"sync"
	"time"

	"ashkicharm/backend/internal/domain"
)

type memoryEntry struct {
	conv      Conversation
	expiresAt time.Time
}

// MemoryStore is the single-process backend. Conversations are copied in
// and out so callers never share a cart slice with the store.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		delete(m.entries, id)
		return nil, ErrNotFound
	}
	c := copyConversation(e.conv)
	return &c, nil
}

func (m *MemoryStore) Save(_ context.Context, c *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{conv: copyConversation(*c)}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.entries[c.ID] = e
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func copyConversation(c Conversation) Conversation {
	c.Cart = append(make([]domain.CartLine, 0, len(c.Cart)), c.Cart...)
	return c
}
