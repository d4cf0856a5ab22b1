package relay

import (
	"fmt"
	"sync"
)

// Registry is the process-wide table of active sessions, keyed by streamSid.
// Entries are removed exactly once, during session teardown.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register adds a session under its stream SID. A duplicate SID is rejected:
// the platform guarantees uniqueness, so a collision means a protocol problem
// rather than a second legitimate leg.
func (r *Registry) Register(s *Session) error {
	id := s.ID()
	if id == "" {
		return fmt.Errorf("session has no stream SID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return fmt.Errorf("session %s already registered", id)
	}
	r.sessions[id] = s
	return nil
}

// Lookup returns the session for a stream SID, if still active.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Unregister removes a session. Removing an absent ID is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
