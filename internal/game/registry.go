// internal/game/registry.go
package game

import (
	"sync"
)

// Registry owns every live session, keyed by room code. It is the only
// process-wide handle to in-memory game state; there is no package-level map.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	notifier StatusNotifier
}

// NewRegistry creates an empty registry. notifier may be nil when no durable
// store is configured.
func NewRegistry(notifier StatusNotifier) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		notifier: notifier,
	}
}

// ResolveOrCreate returns the session for code, creating it atomically if
// absent. Concurrent callers racing on the same fresh code all receive the
// same session; exactly one sees created == true.
func (r *Registry) ResolveOrCreate(code string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[code]; ok {
		return s, false
	}
	s := NewSession(code)
	s.Notifier = r.notifier
	s.OnClose = r.Delete
	r.sessions[code] = s
	s.notifyStatus(StatusWaiting)
	return s, true
}

// Find returns the live session for code, or nil.
func (r *Registry) Find(code string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[code]
}

// Delete removes code from the registry. Safe to call from a session's
// OnClose while its own lock is held; only the registry lock is taken here.
func (r *Registry) Delete(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, code)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close shuts every session down, typically at process exit. Sessions are
// snapshotted first so each one's close can call back into Delete without
// holding the registry lock.
func (r *Registry) Close() {
	r.mu.Lock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.Unlock()

	for _, s := range snapshot {
		s.Mu.Lock()
		s.close()
		s.Mu.Unlock()
	}
}
