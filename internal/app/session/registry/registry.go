// Package registry tracks the active session per guild.
package registry

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"

	"gapless/internal/app/session"
)

var (
	ErrNoSession     = errors.New("no session for guild")
	ErrSessionExists = errors.New("session already exists for guild")
)

// SessionRegistry manages guild sessions with thread-safe access. At
// most one session exists per guild at any time.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[snowflake.ID]*session.Session
}

// NewSessionRegistry creates a new session registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[snowflake.ID]*session.Session),
	}
}

// Add registers a session for its guild.
func (r *SessionRegistry) Add(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.GuildID]; ok {
		return errors.Wrapf(ErrSessionExists, "guild %s", s.GuildID)
	}
	r.sessions[s.GuildID] = s
	return nil
}

// Get retrieves the session for a guild.
func (r *SessionRegistry) Get(guildID snowflake.ID) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[guildID]
	if !ok {
		return nil, errors.Wrapf(ErrNoSession, "guild %s", guildID)
	}
	return s, nil
}

// Remove closes and deregisters the session for a guild. Removing a
// guild with no session is a no-op.
func (r *SessionRegistry) Remove(guildID snowflake.ID) {
	r.mu.Lock()
	s, ok := r.sessions[guildID]
	delete(r.sessions, guildID)
	r.mu.Unlock()

	if ok {
		s.Close()
	}
}

// Count returns the number of active sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes and removes every session.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*session.Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
