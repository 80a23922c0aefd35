package cmd

import (
	"sync"

	"github.com/syncevo/syncengine/internal/ipcserver"
	"github.com/syncevo/syncengine/internal/session"
)

// sessionRegistry tracks every session this process has created, keyed by
// id, so the IPC wire binding (A6) and the auto-sync Enqueuer can look
// sessions up without reaching into the scheduler's private state.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session.Session)}
}

func (r *sessionRegistry) add(sess *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID()] = sess
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *sessionRegistry) Get(id string) (ipcserver.SessionHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *sessionRegistry) All() []ipcserver.SessionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ipcserver.SessionHandle, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// getConcrete returns the live *session.Session for id, so callers that
// need more than the ipcserver.SessionHandle surface (e.g. driving Sync, or
// applying per-source filters) can reach it.
func (r *sessionRegistry) getConcrete(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// hasPeer reports whether any registered session belongs to peer, so the
// auto-sync manager does not enqueue a duplicate
// (autosync.Enqueuer.QueuedOrActive, SPEC_FULL.md §4.7).
func (r *sessionRegistry) hasPeer(peer string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.PeerName() == peer {
			return true
		}
	}
	return false
}
