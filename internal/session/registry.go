package session

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry owns the live sessions keyed by stream identifier.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	deps     Deps
}

// NewRegistry creates an empty session registry sharing deps across all
// streams.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		deps:     deps,
	}
}

// GetOrCreate returns the session for a stream, creating it on first use.
func (r *Registry) GetOrCreate(streamID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[streamID]; ok {
		return s
	}
	s := newSession(streamID, r.deps)
	r.sessions[streamID] = s
	logrus.WithField("stream_id", streamID).Info("Session created")
	return s
}

// RemoveIfEmpty deletes the session iff it has neither a controller nor
// viewers.
func (r *Registry) RemoveIfEmpty(streamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[streamID]
	if !ok || !s.Empty() {
		return
	}
	delete(r.sessions, streamID)
	logrus.WithField("stream_id", streamID).Info("Session removed")
}

// Len reports the live session count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
