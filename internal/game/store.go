package game

import (
	"sync"

	"github.com/google/uuid"
)

// SessionStore tracks the live orchestrator for every active room.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*Session),
	}
}

func (s *SessionStore) Add(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Room.ID] = sess
}

func (s *SessionStore) Get(roomID uuid.UUID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[roomID]
	return sess, ok
}

func (s *SessionStore) Delete(roomID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, roomID)
}
