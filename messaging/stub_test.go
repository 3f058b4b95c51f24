package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"chatterbox/api"
)

// stubBackend records every call and returns canned results. Hooks, when
// set, take precedence over the canned values.
type stubBackend struct {
	mu    sync.Mutex
	calls []string

	chats     []api.Chat
	chatsErr  error
	chatsHook func(ctx context.Context, call int) ([]api.Chat, error)
	chatCalls int

	messages     map[int64][]api.Message
	messagesErr  error
	messagesHook func(ctx context.Context, chatID int64) ([]api.Message, error)

	sendResult api.Message
	sendErr    error

	createID   int64
	createErr  error
	lastCreate createCall

	pinErr  error
	markErr error

	users     []api.User
	searchErr error

	authResult api.AuthResult
	authErr    error

	profileResult api.User
	profileErr    error
	lastToken     string
}

type createCall struct {
	ids   []int64
	name  string
	group bool
}

func (b *stubBackend) record(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
}

// Calls returns the recorded calls.
func (b *stubBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

// Count returns how many recorded calls start with prefix.
func (b *stubBackend) Count(prefix string) int {
	n := 0
	for _, call := range b.Calls() {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func (b *stubBackend) GetChats(ctx context.Context, userID int64) ([]api.Chat, error) {
	b.record("get_chats(%d)", userID)
	b.mu.Lock()
	b.chatCalls++
	call, hook := b.chatCalls, b.chatsHook
	chats, err := append([]api.Chat(nil), b.chats...), b.chatsErr
	b.mu.Unlock()
	if hook != nil {
		return hook(ctx, call)
	}
	return chats, err
}

func (b *stubBackend) GetMessages(ctx context.Context, chatID int64) ([]api.Message, error) {
	b.record("get_messages(%d)", chatID)
	if b.messagesHook != nil {
		return b.messagesHook(ctx, chatID)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.messagesErr != nil {
		return nil, b.messagesErr
	}
	return append([]api.Message(nil), b.messages[chatID]...), nil
}

func (b *stubBackend) SendMessage(_ context.Context, chatID, senderID int64, text string) (api.Message, error) {
	b.record("send(%d,%d,%q)", chatID, senderID, text)
	if b.sendErr != nil {
		return api.Message{}, b.sendErr
	}
	msg := b.sendResult
	msg.ChatID, msg.SenderID, msg.Text = chatID, senderID, text
	return msg, nil
}

func (b *stubBackend) CreateChat(_ context.Context, memberIDs []int64, name string, isGroup bool) (int64, error) {
	b.record("create_chat(%v,%q,%t)", memberIDs, name, isGroup)
	b.mu.Lock()
	b.lastCreate = createCall{ids: memberIDs, name: name, group: isGroup}
	b.mu.Unlock()
	return b.createID, b.createErr
}

func (b *stubBackend) MarkMessagesAsRead(_ context.Context, chatID, userID int64) error {
	b.record("mark_read(%d,%d)", chatID, userID)
	return b.markErr
}

func (b *stubBackend) PinChat(_ context.Context, chatID, userID int64, pinned bool) error {
	b.record("pin(%d,%d,%t)", chatID, userID, pinned)
	return b.pinErr
}

func (b *stubBackend) SearchUsers(_ context.Context, query string) ([]api.User, error) {
	b.record("search(%q)", query)
	return b.users, b.searchErr
}

func (b *stubBackend) Register(_ context.Context, username, name, _ string) (api.AuthResult, error) {
	b.record("register(%q,%q)", username, name)
	return b.authResult, b.authErr
}

func (b *stubBackend) Login(_ context.Context, username, _ string) (api.AuthResult, error) {
	b.record("login(%q)", username)
	return b.authResult, b.authErr
}

func (b *stubBackend) UpdateProfile(_ context.Context, userID int64, token string, _ api.ProfileUpdate) (api.User, error) {
	b.record("update_profile(%d)", userID)
	b.mu.Lock()
	b.lastToken = token
	b.mu.Unlock()
	return b.profileResult, b.profileErr
}
