package session

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// MemoryStore keeps sessions in process memory. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session), now: time.Now}
}

// Create stores a new session.
func (s *MemoryStore) Create(_ context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return eris.New("session with id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now()
	}
	s.sessions[session.ID] = *session
	return nil
}

// Get retrieves a session by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	stored, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if stored.IsExpired(s.now()) {
		return nil, ErrSessionExpired
	}

	return &stored, nil
}

// Delete removes a session by id.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// DeleteExpired removes every session whose expiry lies before now.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, stored := range s.sessions {
		if stored.IsExpired(now) {
			delete(s.sessions, id)
			removed++
		}
	}

	return removed, nil
}
