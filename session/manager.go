package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"chatterbox/api"
)

// Storage keys the session is persisted under.
const (
	TokenKey = "chatterbox.token"
	UserKey  = "chatterbox.user"
)

// ErrNoSession is returned by operations that need a logged-in user.
var ErrNoSession = errors.New("not logged in")

// Session is the authenticated identity.
type Session struct {
	User  api.User
	Token string
}

// Manager holds the current session and mirrors it into a Store.
type Manager struct {
	store Store
	log   zerolog.Logger

	mu      sync.RWMutex
	current *Session
}

func NewManager(store Store, log zerolog.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{store: store, log: log.With().Str("component", "session").Logger()}
}

// Restore loads the persisted session. Partial or unparseable records are
// cleared and treated as no session.
func (m *Manager) Restore() (Session, bool) {
	token, hasToken := m.store.Get(TokenKey)
	rawUser, hasUser := m.store.Get(UserKey)
	if !hasToken && !hasUser {
		return Session{}, false
	}

	sess, err := parse(token, hasToken, rawUser, hasUser)
	if err != nil {
		m.log.Warn().Err(err).Msg("Discarding persisted session")
		if err := m.store.Delete(TokenKey, UserKey); err != nil {
			m.log.Warn().Err(err).Msg("Failed to clear persisted session")
		}
		return Session{}, false
	}

	m.mu.Lock()
	m.current = &sess
	m.mu.Unlock()
	m.log.Debug().Int64("user_id", sess.User.ID).Msg("Restored session")
	return sess, true
}

func parse(token string, hasToken bool, rawUser string, hasUser bool) (Session, error) {
	if !hasToken || token == "" {
		return Session{}, errors.New("token missing")
	}
	if !hasUser {
		return Session{}, errors.New("user missing")
	}
	var user api.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return Session{}, fmt.Errorf("failed to parse user: %w", err)
	}
	if user.ID == 0 {
		return Session{}, errors.New("user has no id")
	}
	return Session{User: user, Token: token}, nil
}

// Begin starts a session after login or registration and persists it.
// The in-memory session is set even if persisting fails.
func (m *Manager) Begin(user api.User, token string) error {
	m.mu.Lock()
	m.current = &Session{User: user, Token: token}
	m.mu.Unlock()
	return m.persist(user, token)
}

// UpdateUser replaces the session's user, typically after a profile edit.
func (m *Manager) UpdateUser(user api.User) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	m.current.User = user
	token := m.current.Token
	m.mu.Unlock()
	return m.persist(user, token)
}

// End clears the session in memory and on disk.
func (m *Manager) End() error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	if err := m.store.Delete(TokenKey, UserKey); err != nil {
		return fmt.Errorf("failed to clear persisted session: %w", err)
	}
	return nil
}

// Current returns the active session, if any.
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

func (m *Manager) persist(user api.User, token string) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := m.store.Set(TokenKey, token); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	if err := m.store.Set(UserKey, string(data)); err != nil {
		return fmt.Errorf("failed to persist user: %w", err)
	}
	return nil
}
