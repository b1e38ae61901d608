package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/htilssu/pyrodactyl/internal/auth"
)

// Session is the server-held state for one browser session. It exists before
// authentication completes: the checkpoint slot lives here while a TOTP
// login is half-proven. All access to the slot serializes on the session
// mutex so at most one live confirmation token exists per session.
type Session struct {
	mu sync.Mutex

	ID           string
	UserID       string // empty until Establish
	CreatedAt    time.Time
	LastActiveAt time.Time

	checkpoint *auth.ConfirmationToken
}

// Authenticated reports whether the session holds a fully proven identity.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.UserID != ""
}

// PutCheckpoint stores a confirmation token, replacing and invalidating any
// prior unexpired one.
func (s *Session) PutCheckpoint(token *auth.ConfirmationToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = token
}

// Checkpoint returns the live confirmation token, or nil.
func (s *Session) Checkpoint() *auth.ConfirmationToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoint
}

// ClearCheckpoint drops the confirmation token.
func (s *Session) ClearCheckpoint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = nil
}

// Config holds session lifetime settings
type Config struct {
	IdleTimeout    time.Duration
	AbsoluteExpiry time.Duration
}

// Manager owns all live sessions, keyed by opaque identifier. Sessions are
// held in memory only; a lost session simply restarts the handshake.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	config   Config
	now      func() time.Time
}

// NewManager creates a session manager
func NewManager(config Config) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		config:   config,
		now:      time.Now,
	}
}

// Create starts a fresh, unauthenticated session.
func (m *Manager) Create() (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := &Session{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	return sess, nil
}

// Get returns the session for an identifier, refreshing its activity time.
// Expired sessions are dropped and reported as absent.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	now := m.now()
	if m.expired(sess, now) {
		m.Destroy(id)
		return nil, false
	}

	sess.mu.Lock()
	sess.LastActiveAt = now
	sess.mu.Unlock()

	return sess, true
}

// Establish marks the session as belonging to userID and rotates the session
// identifier to prevent fixation. The new identifier is returned; the old one
// stops resolving immediately.
func (m *Manager) Establish(sess *Session, userID string) (string, error) {
	newID, err := generateSessionID()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	delete(m.sessions, sess.ID)
	m.sessions[newID] = sess
	m.mu.Unlock()

	sess.mu.Lock()
	sess.ID = newID
	sess.UserID = userID
	sess.LastActiveAt = m.now()
	sess.checkpoint = nil
	sess.mu.Unlock()

	return newID, nil
}

// Destroy removes a session.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// PruneExpired drops idle and over-age sessions, returning how many were
// removed. Run periodically from the background cleanup task.
func (m *Manager) PruneExpired() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for id, sess := range m.sessions {
		if m.expired(sess, now) {
			delete(m.sessions, id)
			pruned++
		}
	}
	return pruned
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) expired(sess *Session, now time.Time) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if m.config.IdleTimeout > 0 && now.Sub(sess.LastActiveAt) > m.config.IdleTimeout {
		return true
	}
	if m.config.AbsoluteExpiry > 0 && now.Sub(sess.CreatedAt) > m.config.AbsoluteExpiry {
		return true
	}
	return false
}

func generateSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
