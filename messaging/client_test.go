package messaging

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatterbox/api"
	"chatterbox/clock"
	"chatterbox/notifier"
	"chatterbox/session"
)

func newTestClient(t *testing.T, b *stubBackend) (*Client, *session.MemoryStore, *notifier.Queue) {
	t.Helper()
	store := session.NewMemoryStore()
	q := notifier.NewQueue(8)
	c := NewClient(b, session.NewManager(store, zerolog.Nop()), Options{Notifier: q, Clock: clock.Fake(base)})
	t.Cleanup(c.Close)
	return c, store, q
}

func TestLoginPersistsSessionAndAttaches(t *testing.T) {
	b := &stubBackend{authResult: api.AuthResult{User: api.User{ID: 7, Username: "anna"}, Token: "tok"}}
	c, store, _ := newTestClient(t, b)

	user, err := c.Login(context.Background(), " anna ", "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, int64(7), c.Sync().UserID())
	assert.Equal(t, 1, b.Count(`login("anna")`))

	token, ok := store.Get(session.TokenKey)
	require.True(t, ok)
	assert.Equal(t, "tok", token)

	current, ok := c.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "anna", current.Username)
}

func TestLoginFailureNotifies(t *testing.T) {
	b := &stubBackend{authErr: &api.AuthError{Status: 401, Message: "invalid username or password"}}
	c, store, q := newTestClient(t, b)

	_, err := c.Login(context.Background(), "anna", "wrong")
	var authErr *api.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.Unauthorized())

	notices := drain(q)
	require.Len(t, notices, 1)
	assert.Equal(t, "Login failed", notices[0].Title)
	assert.Equal(t, "invalid username or password", notices[0].Text)

	_, ok := store.Get(session.TokenKey)
	assert.False(t, ok)
	assert.Zero(t, c.Sync().UserID())
}

func TestRegisterValidatesBeforeCalling(t *testing.T) {
	b := &stubBackend{authResult: api.AuthResult{User: api.User{ID: 9}, Token: "t"}}
	c, _, _ := newTestClient(t, b)

	_, err := c.Register(context.Background(), "anna", " ", "pw")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	_, err = c.Login(context.Background(), "", "pw")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Empty(t, b.Calls())

	user, err := c.Register(context.Background(), "anna", "Anna", "pw")
	require.NoError(t, err)
	assert.Equal(t, int64(9), user.ID)
	assert.Equal(t, []string{`register("anna","Anna")`}, b.Calls())
}

func TestRestoreAndLogout(t *testing.T) {
	b := &stubBackend{authResult: api.AuthResult{User: api.User{ID: 7, Username: "anna"}, Token: "tok"}}
	c, store, _ := newTestClient(t, b)
	_, err := c.Login(context.Background(), "anna", "pw")
	require.NoError(t, err)

	// A second client over the same store resumes the session.
	other := NewClient(b, session.NewManager(store, zerolog.Nop()), Options{})
	user, ok := other.Restore()
	require.True(t, ok)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, int64(7), other.Sync().UserID())

	require.NoError(t, c.Logout())
	_, ok = c.CurrentUser()
	assert.False(t, ok)
	assert.Zero(t, c.Sync().UserID())
	_, ok = store.Get(session.UserKey)
	assert.False(t, ok)

	_, ok = NewClient(b, session.NewManager(store, zerolog.Nop()), Options{}).Restore()
	assert.False(t, ok)
}

func TestUpdateProfile(t *testing.T) {
	b := &stubBackend{
		authResult:    api.AuthResult{User: api.User{ID: 7, Name: "Anna"}, Token: "tok"},
		profileResult: api.User{ID: 7, Name: "Anna K", Bio: "hi"},
	}
	c, store, q := newTestClient(t, b)

	name := "Anna K"
	_, err := c.UpdateProfile(context.Background(), api.ProfileUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = c.Login(context.Background(), "anna", "pw")
	require.NoError(t, err)
	_, err = c.UpdateProfile(context.Background(), api.ProfileUpdate{})
	assert.ErrorIs(t, err, ErrNothingToUpdate)

	user, err := c.UpdateProfile(context.Background(), api.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Anna K", user.Name)
	assert.Equal(t, "tok", b.lastToken)

	current, _ := c.CurrentUser()
	assert.Equal(t, "hi", current.Bio)
	raw, _ := store.Get(session.UserKey)
	assert.Contains(t, raw, "Anna K")

	notices := drain(q)
	require.Len(t, notices, 1)
	assert.Equal(t, notifier.LevelInfo, notices[0].Level)
}

func TestPollUnread(t *testing.T) {
	b := &stubBackend{
		authResult: api.AuthResult{User: api.User{ID: 7}, Token: "tok"},
		chats: []api.Chat{
			{ID: 1, Name: "Anna", UnreadCount: 3, LastMessage: "ping"},
			{ID: 2, Name: "Max"},
		},
	}
	c, _, _ := newTestClient(t, b)

	_, err := c.PollUnread(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = c.Login(context.Background(), "anna", "pw")
	require.NoError(t, err)
	summaries, err := c.PollUnread(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, notifier.UnreadSummary{ChatID: 1, Chat: "Anna", Preview: "ping", Unread: 3}, summaries[0])
}
