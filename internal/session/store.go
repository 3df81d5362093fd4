// Package session owns the in-memory per-session state.  There is no
// database: a session lives exactly as long as the process and is dropped on
// delete.  Each session carries its own transport conversation handle and a
// generation counter used to discard transport results that finish after the
// session was cleared.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"healthcompanion/internal/llm"
	"healthcompanion/pkg"
)

// Session is the unit of ownership: one user, one conversation.  Mu guards
// State, Generation and Conv; hold it only for short, non-blocking sections.
// Turn serializes user actions so that at most one transport call per session
// is in flight; it is never held across Mu-free waits by clear(), which only
// takes Mu and bumps Generation.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	Mu         sync.Mutex
	Turn       sync.Mutex
	State      pkg.SessionState
	Generation uint64
	Conv       llm.Conversation
}

// Snapshot copies the state for handing to the presentation layer.  The
// history slice is copied so later appends cannot race the caller.
func (s *Session) Snapshot() pkg.SessionState {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	st := s.State
	st.History = make([]pkg.ChatMessage, len(s.State.History))
	copy(st.History, s.State.History)
	return st
}

// Store keeps all live sessions keyed by UUID.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[uuid.UUID]*Session)}
}

// Create registers a fresh session in the greeting state.
func (st *Store) Create(lang pkg.Language, conv llm.Conversation) *Session {
	s := &Session{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		State: pkg.SessionState{
			Language: lang,
			History:  []pkg.ChatMessage{},
		},
		Conv: conv,
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

func (st *Store) Get(id uuid.UUID) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *Store) Delete(id uuid.UUID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
