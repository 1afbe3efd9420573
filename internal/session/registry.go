package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Registry is the single shared map of live sessions. All lookups go through
// it; no session ever reaches into another session's state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a new idle session. A caller-provided id (reconnect to a
// known id from a client that minted it) is honored; otherwise one is minted.
func (r *Registry) Create(id, language, voiceID string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	s := &Session{
		ID:             id,
		Language:       language,
		VoiceID:        voiceID,
		state:          StateIdle,
		startedAt:      now,
		lastActivityAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove drops a session from the registry. Called exactly once, after the
// session has transitioned to ENDED.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
