package session

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps sessions in process memory. Idle conversations are
// evicted lazily on access, so no background sweeper is needed.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	idleTTL  time.Duration
	now      func() time.Time
}

func (m *memoryStore) Get(ctx context.Context, conversationID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[conversationID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if m.now().Sub(s.UpdatedAt) > m.idleTTL {
		m.mu.Lock()
		// Re-check under the write lock; a Put may have raced.
		if cur, ok := m.sessions[conversationID]; ok && m.now().Sub(cur.UpdatedAt) > m.idleTTL {
			delete(m.sessions, conversationID)
		}
		m.mu.Unlock()
		return nil, nil
	}

	cp := *s
	cp.Turns = append([]Turn(nil), s.Turns...)
	return &cp, nil
}

func (m *memoryStore) Put(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	cp.UpdatedAt = m.now()
	cp.Turns = append([]Turn(nil), s.Turns...)
	m.sessions[s.ConversationID] = &cp

	// Piggyback eviction of idle neighbors on writes to bound memory.
	for id, old := range m.sessions {
		if m.now().Sub(old.UpdatedAt) > m.idleTTL {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, conversationID)
	return nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = nil
	return nil
}
