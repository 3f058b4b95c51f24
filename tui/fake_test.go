package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chatterbox/api"
	"chatterbox/clock"
	"chatterbox/messaging"
	"chatterbox/notifier"
	"chatterbox/session"
)

var testNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

// fakeBackend is a small in-memory messenger.
type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	users    []api.User
	chats    []api.Chat
	messages map[int64][]api.Message
	nextID   int64
	sendErr  error
	loginErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users: []api.User{
			{ID: 1, Username: "anna", Name: "Anna"},
			{ID: 2, Username: "bob", Name: "Bob", Online: true},
			{ID: 3, Username: "carl", Name: "Carl"},
		},
		chats: []api.Chat{
			{ID: 10, Name: "Bob", OtherUserID: 2, LastMessage: "hey", LastMessageTime: api.Timestamp{Time: testNow.Add(-time.Hour)}, UnreadCount: 1},
			{ID: 11, Name: "Carl", OtherUserID: 3, LastMessage: "later", LastMessageTime: api.Timestamp{Time: testNow.Add(-time.Minute)}},
		},
		messages: map[int64][]api.Message{
			10: {{ID: 100, ChatID: 10, SenderID: 2, Text: "hey", Name: "Bob", CreatedAt: api.Timestamp{Time: testNow.Add(-time.Hour)}}},
		},
		nextID: 500,
	}
}

func (b *fakeBackend) record(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
}

func (b *fakeBackend) called(prefix string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (b *fakeBackend) count(prefix string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (b *fakeBackend) GetChats(_ context.Context, userID int64) ([]api.Chat, error) {
	b.record("get_chats(%d)", userID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.Chat(nil), b.chats...), nil
}

func (b *fakeBackend) GetMessages(_ context.Context, chatID int64) ([]api.Message, error) {
	b.record("get_messages(%d)", chatID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.Message(nil), b.messages[chatID]...), nil
}

func (b *fakeBackend) SendMessage(_ context.Context, chatID, senderID int64, text string) (api.Message, error) {
	b.record("send(%d,%d,%q)", chatID, senderID, text)
	if b.sendErr != nil {
		return api.Message{}, b.sendErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	msg := api.Message{ID: b.nextID, ChatID: chatID, SenderID: senderID, Text: text, CreatedAt: api.Timestamp{Time: testNow}}
	b.messages[chatID] = append(b.messages[chatID], msg)
	return msg, nil
}

func (b *fakeBackend) CreateChat(_ context.Context, memberIDs []int64, name string, isGroup bool) (int64, error) {
	b.record("create_chat(%v,%q,%t)", memberIDs, name, isGroup)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	chat := api.Chat{ID: b.nextID, Name: name, IsGroup: isGroup, MemberIDs: memberIDs, UpdatedAt: api.Timestamp{Time: testNow}}
	if !isGroup {
		chat.OtherUserID = memberIDs[1]
		chat.Name = b.users[memberIDs[1]-1].Name
	}
	b.chats = append(b.chats, chat)
	return chat.ID, nil
}

func (b *fakeBackend) MarkMessagesAsRead(_ context.Context, chatID, userID int64) error {
	b.record("mark_read(%d,%d)", chatID, userID)
	return nil
}

func (b *fakeBackend) PinChat(_ context.Context, chatID, userID int64, pinned bool) error {
	b.record("pin(%d,%d,%t)", chatID, userID, pinned)
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.chats {
		if b.chats[i].ID == chatID {
			b.chats[i].Pinned = pinned
		}
	}
	return nil
}

func (b *fakeBackend) SearchUsers(_ context.Context, query string) ([]api.User, error) {
	b.record("search(%q)", query)
	var out []api.User
	for _, u := range b.users {
		if strings.Contains(strings.ToLower(u.Name+" "+u.Username), strings.ToLower(query)) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (b *fakeBackend) Register(_ context.Context, username, name, _ string) (api.AuthResult, error) {
	b.record("register(%q,%q)", username, name)
	return api.AuthResult{User: api.User{ID: 1, Username: username, Name: name}, Token: "tok"}, nil
}

func (b *fakeBackend) Login(_ context.Context, username, _ string) (api.AuthResult, error) {
	b.record("login(%q)", username)
	if b.loginErr != nil {
		return api.AuthResult{}, b.loginErr
	}
	return api.AuthResult{User: b.users[0], Token: "tok"}, nil
}

func (b *fakeBackend) UpdateProfile(_ context.Context, userID int64, _ string, update api.ProfileUpdate) (api.User, error) {
	b.record("update_profile(%d)", userID)
	user := b.users[0]
	if update.Bio != nil {
		user.Bio = *update.Bio
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	return user, nil
}

type harness struct {
	backend *fakeBackend
	client  *messaging.Client
	store   *session.MemoryStore
	notices *notifier.Queue
	clock   *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: newFakeBackend(),
		store:   session.NewMemoryStore(),
		notices: notifier.NewQueue(16),
		clock:   clock.Fake(testNow),
	}
	h.client = messaging.NewClient(h.backend, session.NewManager(h.store, zerolog.Nop()), messaging.Options{
		Clock:    h.clock,
		Notifier: h.notices,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(h.client.Close)
	return h
}

// signedIn persists a session for anna so New skips the auth screen.
func (h *harness) signedIn(t *testing.T) {
	t.Helper()
	require.NoError(t, session.NewManager(h.store, zerolog.Nop()).Begin(h.backend.users[0], "tok"))
}

func (h *harness) model(t *testing.T) Model {
	t.Helper()
	m := New(context.Background(), h.client, h.notices, Options{Clock: h.clock, Logger: zerolog.Nop()})
	return update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
}

// mainModel returns a signed-in model with the chat list loaded.
func (h *harness) mainModel(t *testing.T) Model {
	t.Helper()
	h.signedIn(t)
	m := h.model(t)
	require.Equal(t, screenMain, m.screen)
	require.NoError(t, h.client.Sync().RefreshChats(context.Background()))
	return update(t, m, syncUpdatedMsg{})
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok, "Update returned %T", next)
	return model
}

func press(t *testing.T, m Model, keys string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch keys {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)}
	}
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

// collect runs cmd and any batched commands, returning the messages of
// the given type. Commands that never finish are abandoned after a
// second.
func collect[T tea.Msg](t *testing.T, cmd tea.Cmd) []T {
	t.Helper()
	var out []T
	var walk func(tea.Cmd)
	walk = func(cmd tea.Cmd) {
		if cmd == nil {
			return
		}
		done := make(chan tea.Msg, 1)
		go func() { done <- cmd() }()
		var msg tea.Msg
		select {
		case msg = <-done:
		case <-time.After(time.Second):
			return
		}
		switch msg := msg.(type) {
		case tea.BatchMsg:
			for _, c := range msg {
				walk(c)
			}
		case T:
			out = append(out, msg)
		}
	}
	walk(cmd)
	return out
}

func single[T tea.Msg](t *testing.T, cmd tea.Cmd) T {
	t.Helper()
	msgs := collect[T](t, cmd)
	require.Len(t, msgs, 1)
	return msgs[0]
}
