package bot

import (
	"sync"

	"github.com/zapiskibot/zapiski/internal/notes"
)

// Session is one user's dialog position plus whatever the pending prompt
// staged. DeleteChoices is the numbered snapshot shown by the delete prompt;
// the user's reply indexes into it, not into live storage.
type Session struct {
	State         State
	DeleteChoices []notes.Note
}

// SessionStore keeps dialog state between updates.
type SessionStore interface {
	Get(userID int64) Session
	Put(userID int64, session Session)
	Reset(userID int64)
}

// MemorySessionStore is the in-process SessionStore used by the long-polling
// front-end. State is lost on restart, which only ever cancels a prompt.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[int64]Session
}

// NewMemorySessionStore constructs an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[int64]Session)}
}

// Get returns the user's session, StateIdle when none exists.
func (s *MemorySessionStore) Get(userID int64) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID]
}

// Put stores the session.
func (s *MemorySessionStore) Put(userID int64, session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = session
}

// Reset drops the session back to idle.
func (s *MemorySessionStore) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
