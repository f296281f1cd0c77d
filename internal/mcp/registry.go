package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry owns the live session table. All access is guarded; handlers on
// different connections share it freely.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty session table.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create allocates a session with a fresh identifier.
func (r *Registry) Create() *Session {
	session := newSession(uuid.NewString())
	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()
	return session
}

// Get returns the session or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Remove drops a session and closes its streams, reporting whether it
// existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		session.closeSinks()
	}
	return ok
}

// Count returns the live session count.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// All returns a snapshot of live sessions.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// SweepIdle removes sessions inactive past the timeout and returns the
// removed ids. An open event stream does not count as activity: closing
// the sinks unwinds the stream handler for a client that went silent.
func (r *Registry) SweepIdle(timeout time.Duration) []string {
	cutoff := time.Now().Add(-timeout)

	r.mu.Lock()
	var stale []*Session
	for id, session := range r.sessions {
		if session.LastActive().Before(cutoff) {
			delete(r.sessions, id)
			stale = append(stale, session)
		}
	}
	r.mu.Unlock()

	removed := make([]string, 0, len(stale))
	for _, session := range stale {
		session.closeSinks()
		removed = append(removed, session.ID)
	}
	return removed
}
