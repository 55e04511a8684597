package admin

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session is one authenticated browser session backing cookie auth.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SessionManager issues and validates cookie sessions. Expired sessions
// are rejected immediately and reaped by a background purger.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	timeout  time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewSessionManager starts the purger. Call Destroy when done.
func NewSessionManager(timeout time.Duration) *SessionManager {
	if timeout <= 0 {
		timeout = time.Hour
	}
	m := &SessionManager{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go m.purge()
	return m
}

// Create mints a new session for a user.
func (m *SessionManager) Create(userID string, role Role) *Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.timeout),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Validate looks up a session id and rejects expired entries.
func (m *SessionManager) Validate(id string) AuthResult {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return denied("session", ErrInvalidCredentials)
	}
	if s.Expired(time.Now()) {
		m.Destroy(id)
		return denied("session", ErrSessionExpired)
	}
	return AuthResult{Valid: true, UserID: s.UserID, Role: s.Role, Method: "session"}
}

// Destroy removes one session.
func (m *SessionManager) Destroy(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the live session count.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) purge() {
	defer close(m.doneCh)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			removed := 0
			for id, s := range m.sessions {
				if s.Expired(now) {
					delete(m.sessions, id)
					removed++
				}
			}
			m.mu.Unlock()
			if removed > 0 {
				log.Debug().Int("count", removed).Msg("Purged expired admin sessions")
			}
		}
	}
}

// Close stops the purger. Idempotent.
func (m *SessionManager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		<-m.doneCh
	})
}
