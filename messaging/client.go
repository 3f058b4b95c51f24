package messaging

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"chatterbox/api"
	"chatterbox/session"
)

// Backend is the full remote API: auth plus messaging.
type Backend interface {
	API
	Register(ctx context.Context, username, name, password string) (api.AuthResult, error)
	Login(ctx context.Context, username, password string) (api.AuthResult, error)
	UpdateProfile(ctx context.Context, userID int64, token string, update api.ProfileUpdate) (api.User, error)
}

// Client ties authentication and the session to a Synchronizer.
type Client struct {
	backend  Backend
	sessions *session.Manager
	sync     *Synchronizer
	log      zerolog.Logger
}

func NewClient(backend Backend, sessions *session.Manager, opts Options) *Client {
	if sessions == nil {
		sessions = session.NewManager(session.NewMemoryStore(), opts.Logger)
	}
	return &Client{
		backend:  backend,
		sessions: sessions,
		sync:     NewSynchronizer(backend, opts),
		log:      opts.Logger.With().Str("component", "client").Logger(),
	}
}

// Sync returns the chat synchronizer.
func (c *Client) Sync() *Synchronizer {
	return c.sync
}

// Restore resumes a persisted session, if there is a valid one.
func (c *Client) Restore() (api.User, bool) {
	sess, ok := c.sessions.Restore()
	if !ok {
		return api.User{}, false
	}
	c.sync.Attach(sess.User.ID)
	return sess.User, true
}

// CurrentUser returns the logged-in user.
func (c *Client) CurrentUser() (api.User, bool) {
	sess, ok := c.sessions.Current()
	return sess.User, ok
}

func (c *Client) Register(ctx context.Context, username, name, password string) (api.User, error) {
	username, name = strings.TrimSpace(username), strings.TrimSpace(name)
	if username == "" || name == "" || password == "" {
		return api.User{}, ErrMissingCredentials
	}
	res, err := c.backend.Register(ctx, username, name, password)
	if err != nil {
		return api.User{}, c.sync.fail(ctx, "Registration failed", err)
	}
	c.log.Info().Int64("user_id", res.User.ID).Str("username", res.User.Username).Msg("Registered")
	return c.begin(res), nil
}

func (c *Client) Login(ctx context.Context, username, password string) (api.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return api.User{}, ErrMissingCredentials
	}
	res, err := c.backend.Login(ctx, username, password)
	if err != nil {
		return api.User{}, c.sync.fail(ctx, "Login failed", err)
	}
	c.log.Info().Int64("user_id", res.User.ID).Str("username", res.User.Username).Msg("Logged in")
	return c.begin(res), nil
}

// begin records the session and attaches the synchronizer. A session
// that cannot be persisted still works for this process.
func (c *Client) begin(res api.AuthResult) api.User {
	if err := c.sessions.Begin(res.User, res.Token); err != nil {
		c.log.Warn().Err(err).Msg("Failed to persist session")
	}
	c.sync.Attach(res.User.ID)
	return res.User
}

// Logout clears the synchronizer and the session, in memory and on disk.
func (c *Client) Logout() error {
	c.sync.Detach()
	return c.sessions.End()
}

// UpdateProfile applies update to the current user's profile.
func (c *Client) UpdateProfile(ctx context.Context, update api.ProfileUpdate) (api.User, error) {
	sess, ok := c.sessions.Current()
	if !ok {
		return api.User{}, ErrNotAuthenticated
	}
	if update.IsEmpty() {
		return api.User{}, ErrNothingToUpdate
	}
	user, err := c.backend.UpdateProfile(ctx, sess.User.ID, sess.Token, update)
	if err != nil {
		return api.User{}, c.sync.fail(ctx, "Failed to update profile", err)
	}
	if err := c.sessions.UpdateUser(user); err != nil {
		c.log.Warn().Err(err).Msg("Failed to persist updated profile")
	}
	c.sync.info("Profile updated")
	return user, nil
}

// Close stops polling and waits for background work.
func (c *Client) Close() {
	c.sync.Stop()
	c.sync.Wait()
}
