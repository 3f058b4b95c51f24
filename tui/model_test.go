package tui

import (
	"context"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatterbox/api"
	"chatterbox/callsim"
	"chatterbox/notifier"
	"chatterbox/session"
)

func nextNotice(t *testing.T, q *notifier.Queue) notifier.Notice {
	t.Helper()
	select {
	case n := <-q.C():
		return n
	case <-time.After(time.Second):
		t.Fatal("no notice")
		return notifier.Notice{}
	}
}

func TestViewBeforeWindowSize(t *testing.T) {
	h := newHarness(t)
	m := New(context.Background(), h.client, h.notices, Options{Clock: h.clock, Logger: zerolog.Nop()})
	assert.Equal(t, "Loading...", m.View())
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	m := h.model(t)
	require.Equal(t, screenAuth, m.screen)
	assert.Contains(t, m.View(), "Sign in")

	m, _ = press(t, m, "anna")
	m, _ = press(t, m, "tab")
	m, _ = press(t, m, "secret")
	m, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	assert.True(t, m.auth.busy)

	m = update(t, m, single[authDoneMsg](t, cmd))
	assert.Equal(t, screenMain, m.screen)
	assert.Equal(t, "anna", m.user.Username)
	assert.True(t, h.backend.called(`login("anna")`))

	token, ok := h.store.Get(session.TokenKey)
	require.True(t, ok)
	assert.Equal(t, "tok", token)
}

func TestLoginRequiresFields(t *testing.T) {
	h := newHarness(t)
	m := h.model(t)

	m, _ = press(t, m, "tab")
	m, cmd := press(t, m, "enter")
	assert.Nil(t, cmd)
	assert.Equal(t, "Username and password are required", m.auth.err)
	assert.Empty(t, h.backend.calls)
}

func TestLoginFailureShowsServerMessage(t *testing.T) {
	h := newHarness(t)
	h.backend.loginErr = &api.AuthError{Status: 401, Message: "Invalid username or password"}
	m := h.model(t)

	m, _ = press(t, m, "anna")
	m, _ = press(t, m, "tab")
	m, _ = press(t, m, "nope")
	m, cmd := press(t, m, "enter")
	m = update(t, m, single[authDoneMsg](t, cmd))

	assert.Equal(t, screenAuth, m.screen)
	assert.Equal(t, "Invalid username or password", m.auth.err)
	assert.Empty(t, m.auth.value(fieldPassword))
	assert.Empty(t, m.toasts, "the synchronizer already raised a notice")
	assert.Equal(t, "Login failed", nextNotice(t, h.notices).Title)
}

func TestRegisterModeShowsNameField(t *testing.T) {
	h := newHarness(t)
	m := h.model(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	m = next.(Model)
	assert.True(t, m.auth.register)
	assert.Equal(t, []int{fieldUsername, fieldName, fieldPassword}, m.auth.fields())
	assert.Contains(t, m.View(), "Create account")

	m, _ = press(t, m, "dora")
	m, _ = press(t, m, "tab")
	m, _ = press(t, m, "Dora")
	m, _ = press(t, m, "tab")
	m, _ = press(t, m, "pw")
	m, cmd := press(t, m, "enter")
	m = update(t, m, single[authDoneMsg](t, cmd))
	assert.Equal(t, screenMain, m.screen)
	assert.True(t, h.backend.called(`register("dora","Dora")`))
}

func TestRestoredSessionListsChats(t *testing.T) {
	h := newHarness(t)
	m := h.mainModel(t)

	require.Len(t, m.chats, 2)
	assert.Equal(t, int64(11), m.chats[0].ID, "newest chat first")
	assert.Equal(t, int64(10), m.chats[1].ID)

	view := m.View()
	assert.Contains(t, view, "Carl")
	assert.Contains(t, view, "Bob")
	assert.Contains(t, view, "1 min")
}

func TestSelectAndSend(t *testing.T) {
	h := newHarness(t)
	m := h.mainModel(t)

	m, _ = press(t, m, "j")
	assert.Equal(t, 1, m.cursor)
	m, cmd := press(t, m, "enter")
	assert.Equal(t, paneChat, m.focus)

	op := single[opDoneMsg](t, cmd)
	assert.Equal(t, "select", op.op)
	require.NoError(t, op.err)
	m = update(t, m, op)
	assert.True(t, h.backend.called("get_messages(10)"))
	assert.Contains(t, m.history.View(), "hey")

	m, _ = press(t, m, "hello")
	assert.Equal(t, "hello", m.input.Value())
	m, cmd = press(t, m, "enter")
	assert.Empty(t, m.input.Value())

	m = update(t, m, single[sentMsg](t, cmd))
	assert.True(t, h.backend.called(`send(10,1,"hello")`))
	assert.Contains(t, m.history.View(), "hello")
	assert.Equal(t, "hello", m.chats[0].LastMessage, "sent message moves the chat to the top")

	m, _ = press(t, m, "esc")
	assert.Equal(t, paneList, m.focus)
}

func TestFailedSendRestoresInput(t *testing.T) {
	h := newHarness(t)
	h.backend.sendErr = &api.RequestError{Op: "send", Status: 500, Message: "Failed to send message"}
	m := h.mainModel(t)

	m, cmd := press(t, m, "enter")
	m = update(t, m, single[opDoneMsg](t, cmd))
	m, _ = press(t, m, "hello")
	m, cmd = press(t, m, "enter")
	m = update(t, m, single[sentMsg](t, cmd))

	assert.Equal(t, "hello", m.input.Value())
	assert.Empty(t, m.toasts)
	assert.Equal(t, "Failed to send message", nextNotice(t, h.notices).Title)
}

func TestPinRunsTogglePin(t *testing.T) {
	h := newHarness(t)
	m := h.mainModel(t)

	m, _ = press(t, m, "j")
	_, cmd := press(t, m, "p")
	op := single[opDoneMsg](t, cmd)
	assert.Equal(t, "pin", op.op)
	m = update(t, m, op)

	assert.True(t, h.backend.called("pin(10,1,true)"))
	assert.Equal(t, int64(10), m.chats[0].ID, "pinned chat moves to the top")
	assert.True(t, m.chats[0].Pinned)
	assert.Equal(t, 0, m.cursor, "cursor follows the chat")
}

func TestDeleteIsLocal(t *testing.T) {
	h := newHarness(t)
	m := h.mainModel(t)

	m, _ = press(t, m, "d")
	require.Len(t, m.chats, 1)
	assert.Equal(t, int64(10), m.chats[0].ID)
	require.Len(t, m.toasts, 1)
	assert.Equal(t, "Chat deleted", m.toasts[0].notice.Title)

	require.NoError(t, h.client.Sync().RefreshChats(context.Background()))
	m = update(t, m, syncUpdatedMsg{})
	assert.Len(t, m.chats, 2, "the server still has the chat")
}

func TestCallOverlay(t *testing.T) {
	h := newHarness(t)
	m := h.mainModel(t)

	m, cmd := press(t, m, "c")
	assert.NotNil(t, cmd)
	require.NotNil(t, m.call)
	assert.Equal(t, overlayCall, m.overlay)
	assert.Equal(t, "Carl", m.call.Peer.Name)
	assert.Contains(t, m.View(), "Connecting...")

	h.clock.Advance(callsim.ConnectDelay + 5*time.Second)
	assert.Contains(t, m.View(), "00:05")

	m, _ = press(t, m, "m")
	assert.True(t, m.call.Muted())
	assert.Contains(t, m.View(), "Muted")

	stale := update(t, m, callTickMsg{})
	assert.NotNil(t, stale.call)

	m, _ = press(t, m, "e")
	assert.Nil(t, m.call)
	assert.Equal(t, overlayNone, m.overlay)
	require.Len(t, m.toasts, 1)
	assert.Equal(t, "Call ended", m.toasts[0].notice.Title)
	assert.Equal(t, "00:05", m.toasts[0].notice.Text)
}

func TestToasts(t *testing.T) {
	h := newHarness(t)
	m := h.mainModel(t)

	for i := 0; i < maxToasts+1; i++ {
		m = update(t, m, noticeMsg(notifier.Notice{Title: fmt.Sprintf("notice %d", i)}))
	}
	require.Len(t, m.toasts, maxToasts)
	assert.Equal(t, "notice 1", m.toasts[0].notice.Title)
	assert.Contains(t, m.View(), "notice 3")

	m = update(t, m, toastExpiredMsg{id: m.toasts[0].id})
	require.Len(t, m.toasts, maxToasts-1)
	assert.Equal(t, "notice 2", m.toasts[0].notice.Title)
}

func TestCreateGroup(t *testing.T) {
	h := newHarness(t)
	m := h.mainModel(t)

	m, cmd := press(t, m, "g")
	assert.Equal(t, overlayGroup, m.overlay)
	m = update(t, m, single[usersMsg](t, cmd))
	require.Len(t, m.group.users, 2, "current user is not offered")

	m, _ = press(t, m, "Team")
	m, _ = press(t, m, "tab")
	m, _ = press(t, m, " ")
	m, _ = press(t, m, "down")
	m, _ = press(t, m, " ")
	assert.Equal(t, []int64{2, 3}, m.group.memberIDs())
	assert.Contains(t, m.View(), "2 selected")

	m, cmd = press(t, m, "enter")
	created := single[groupCreatedMsg](t, cmd)
	require.NoError(t, created.err)
	m = update(t, m, created)

	assert.True(t, h.backend.called(`create_chat([1 2 3],"Team",true)`))
	assert.Equal(t, overlayNone, m.overlay)
	assert.Equal(t, "Team", m.chats[m.cursor].Name)
	assert.Equal(t, "Group created", nextNotice(t, h.notices).Title)
}

func TestCreateGroupNeedsMembers(t *testing.T) {
	h := newHarness(t)
	m := h.mainModel(t)

	m, cmd := press(t, m, "g")
	m = update(t, m, single[usersMsg](t, cmd))
	m, _ = press(t, m, "Solo")
	m, cmd = press(t, m, "enter")
	m = update(t, m, single[groupCreatedMsg](t, cmd))

	assert.Equal(t, overlayGroup, m.overlay)
	assert.NotEmpty(t, m.group.err)
	assert.False(t, h.backend.called("create_chat"))
}

func TestSearchAndStartChat(t *testing.T) {
	h := newHarness(t)
	m := h.mainModel(t)

	m, _ = press(t, m, "/")
	require.Equal(t, overlaySearch, m.overlay)

	var found []usersMsg
	for _, r := range "car" {
		var cmd tea.Cmd
		m, cmd = press(t, m, string(r))
		found = append(found, single[usersMsg](t, cmd))
	}
	assert.Equal(t, 3, h.backend.count("search("))
	assert.True(t, m.search.searching)

	// Answers for "c" and "ca" arrive after "car" was typed and are dropped.
	for _, msg := range found {
		m = update(t, m, msg)
	}
	assert.False(t, m.search.searching)
	require.Len(t, m.search.results, 1)
	assert.Equal(t, "carl", m.search.results[0].Username)

	stale := usersMsg{query: "c", users: h.backend.users}
	m = update(t, m, stale)
	require.Len(t, m.search.results, 1)

	m, cmd := press(t, m, "enter")
	started := single[chatStartedMsg](t, cmd)
	require.NoError(t, started.err)
	m = update(t, m, started)

	assert.True(t, h.backend.called(`create_chat([1 3],"",false)`))
	assert.Equal(t, 3, h.backend.count("search("), "enter on a settled query starts the chat")
	assert.Equal(t, overlayNone, m.overlay)
	assert.Equal(t, paneChat, m.focus)
	assert.Equal(t, started.chatID, m.chats[m.cursor].ID)
	assert.Equal(t, started.chatID, h.client.Sync().SelectedID())
}

func TestSearchEnterWithEmptyQueryListsUsers(t *testing.T) {
	h := newHarness(t)
	m := h.mainModel(t)

	m, _ = press(t, m, "/")
	m, cmd := press(t, m, "enter")
	m = update(t, m, single[usersMsg](t, cmd))
	assert.True(t, h.backend.called(`search("")`))
	assert.Len(t, m.search.results, 2, "anna is left out of her own results")
}

func TestEditProfile(t *testing.T) {
	h := newHarness(t)
	m := h.mainModel(t)

	m, _ = press(t, m, "P")
	require.Equal(t, overlayProfile, m.overlay)
	m, _ = press(t, m, "e")
	require.True(t, m.profile.editing)
	assert.Equal(t, "Anna", m.profile.inputs[profileName].Value())

	m, _ = press(t, m, "tab")
	m, _ = press(t, m, "tab")
	m, _ = press(t, m, "hello")
	change := m.profile.changes()
	assert.Nil(t, change.Name)
	assert.Nil(t, change.Username)
	require.NotNil(t, change.Bio)
	assert.Equal(t, "hello", *change.Bio)

	m, cmd := press(t, m, "enter")
	saved := single[profileSavedMsg](t, cmd)
	require.NoError(t, saved.err)
	m = update(t, m, saved)

	assert.Equal(t, "hello", m.user.Bio)
	assert.False(t, m.profile.editing)
	assert.Contains(t, m.View(), "hello")
	assert.True(t, h.backend.called("update_profile(1)"))
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	m := h.mainModel(t)

	_, cmd := press(t, m, "L")
	m = update(t, m, single[loggedOutMsg](t, cmd))

	assert.Equal(t, screenAuth, m.screen)
	assert.Empty(t, m.chats)
	_, ok := h.store.Get(session.TokenKey)
	assert.False(t, ok)
}

func TestHelpOverlay(t *testing.T) {
	h := newHarness(t)
	m := h.mainModel(t)

	m, _ = press(t, m, "?")
	require.Equal(t, overlayHelp, m.overlay)
	assert.Contains(t, m.View(), "pin/unpin")

	m, _ = press(t, m, "x")
	assert.Equal(t, overlayNone, m.overlay)
	assert.Len(t, m.chats, 2, "closing help does not trigger the key")
}
