// Package tui is the interactive terminal interface: an auth screen, the
// chat list beside the open chat, and overlays for finding people,
// creating groups, the profile and calls. Every intent goes through
// messaging.Client; the model only renders its projections.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatterbox/api"
	"chatterbox/callsim"
	"chatterbox/clock"
	"chatterbox/messaging"
	"chatterbox/notifier"
)

const (
	defaultToastTTL = 4 * time.Second
	maxToasts       = 3
	callTick        = time.Second
)

type screen int

const (
	screenAuth screen = iota
	screenMain
)

type pane int

const (
	paneList pane = iota
	paneChat
)

type overlay int

const (
	overlayNone overlay = iota
	overlayHelp
	overlaySearch
	overlayGroup
	overlayProfile
	overlayCall
)

type (
	authDoneMsg struct {
		user api.User
		err  error
	}
	syncUpdatedMsg struct{}
	noticeMsg      notifier.Notice
	opDoneMsg      struct {
		op  string
		err error
	}
	sentMsg struct {
		text string
		err  error
	}
	usersMsg struct {
		query string
		users []api.User
		err   error
	}
	chatStartedMsg struct {
		chatID int64
		err    error
	}
	groupCreatedMsg struct {
		chatID int64
		err    error
	}
	profileSavedMsg struct {
		user api.User
		err  error
	}
	loggedOutMsg    struct{ err error }
	callTickMsg     struct{ id uuid.UUID }
	toastExpiredMsg struct{ id int }
)

type Options struct {
	Clock  clock.Clock
	Logger zerolog.Logger
	// ToastTTL is how long a notification stays on screen.
	ToastTTL time.Duration
}

type toast struct {
	id     int
	notice notifier.Notice
}

// Model is the bubbletea model for the whole application.
type Model struct {
	ctx     context.Context
	client  *messaging.Client
	notices *notifier.Queue
	clock   clock.Clock
	log     zerolog.Logger
	keys    KeyMap

	width   int
	height  int
	screen  screen
	focus   pane
	overlay overlay
	user    api.User

	auth authForm

	chats   []api.Chat
	cursor  int
	input   textinput.Model
	history viewport.Model

	search  searchPanel
	group   groupForm
	profile profilePanel
	call    *callsim.Call

	toasts    []toast
	nextToast int
	toastTTL  time.Duration
}

// New builds the model. A persisted session is resumed, skipping the
// auth screen.
func New(ctx context.Context, client *messaging.Client, notices *notifier.Queue, opts Options) Model {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.ToastTTL <= 0 {
		opts.ToastTTL = defaultToastTTL
	}
	if notices == nil {
		notices = notifier.NewQueue(16)
	}

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 4000
	input.Width = 50

	m := Model{
		ctx:      ctx,
		client:   client,
		notices:  notices,
		clock:    opts.Clock,
		log:      opts.Logger.With().Str("component", "tui").Logger(),
		keys:     DefaultKeyMap,
		auth:     newAuthForm(),
		input:    input,
		history:  viewport.New(80, 20),
		search:   newSearchPanel(),
		group:    newGroupForm(),
		profile:  newProfilePanel(api.User{}),
		toastTTL: opts.ToastTTL,
	}
	if user, ok := client.Restore(); ok {
		m.screen = screenMain
		m.user = user
		m.log.Info().Int64("user_id", user.ID).Msg("Resumed session")
	}
	return m
}

// Run starts the program on the alternate screen and blocks until the
// user quits or ctx ends.
func Run(ctx context.Context, client *messaging.Client, notices *notifier.Queue, opts Options) error {
	program := tea.NewProgram(New(ctx, client, notices, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	client.Close()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.waitForNotice(), m.waitForUpdate()}
	if m.screen == screenMain {
		cmds = append(cmds, m.startPolling())
	}
	return tea.Batch(cmds...)
}

// --- Commands ---

func (m Model) waitForUpdate() tea.Cmd {
	updates, ctx := m.client.Sync().Updates(), m.ctx
	return func() tea.Msg {
		select {
		case <-updates:
			return syncUpdatedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) waitForNotice() tea.Cmd {
	notices, ctx := m.notices.C(), m.ctx
	return func() tea.Msg {
		select {
		case n := <-notices:
			return noticeMsg(n)
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) startPolling() tea.Cmd {
	client, ctx := m.client, m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: "poll", err: client.Sync().Start(ctx)}
	}
}

func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) tickCall() tea.Cmd {
	id := m.call.ID
	return tea.Tick(callTick, func(time.Time) tea.Msg { return callTickMsg{id: id} })
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case syncUpdatedMsg:
		m.refresh()
		return m, m.waitForUpdate()

	case noticeMsg:
		cmd := m.addToast(notifier.Notice(msg))
		return m, tea.Batch(cmd, m.waitForNotice())

	case toastExpiredMsg:
		m.dropToast(msg.id)
		return m, nil

	case authDoneMsg:
		return m.handleAuthDone(msg)

	case opDoneMsg:
		m.refresh()
		if msg.err != nil {
			m.log.Debug().Err(msg.err).Str("op", msg.op).Msg("Operation failed")
			cmd := m.failureToast(msg.err)
			return m, cmd
		}
		return m, nil

	case sentMsg:
		m.refresh()
		if msg.err != nil {
			if m.input.Value() == "" {
				m.input.SetValue(msg.text)
				m.input.CursorEnd()
			}
			cmd := m.failureToast(msg.err)
			return m, cmd
		}
		return m, nil

	case usersMsg:
		return m.handleUsers(msg)

	case chatStartedMsg:
		m.search.busy = false
		m.refresh()
		if msg.err != nil {
			cmd := m.failureToast(msg.err)
			return m, cmd
		}
		m.overlay = overlayNone
		m.moveCursorTo(msg.chatID)
		cmd := m.focusChat()
		return m, cmd

	case groupCreatedMsg:
		m.group.busy = false
		m.refresh()
		if msg.err != nil {
			if errors.Is(msg.err, messaging.ErrInvalidGroup) {
				m.group.err = "Enter a group name and pick at least one member"
				return m, nil
			}
			cmd := m.failureToast(msg.err)
			return m, cmd
		}
		m.overlay = overlayNone
		m.moveCursorTo(msg.chatID)
		return m, nil

	case profileSavedMsg:
		m.profile.busy = false
		if msg.err != nil {
			cmd := m.failureToast(msg.err)
			return m, cmd
		}
		m.user = msg.user
		m.profile.user = msg.user
		m.profile.editing = false
		return m, nil

	case loggedOutMsg:
		m.resetToAuth()
		if msg.err != nil {
			cmd := m.failureToast(msg.err)
			return m, cmd
		}
		return m, textinput.Blink

	case callTickMsg:
		if m.overlay == overlayCall && m.call != nil && m.call.ID == msg.id {
			return m, m.tickCall()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.forward(msg)
}

// forward passes non-key messages such as cursor blinks to the active
// text input.
func (m Model) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.screen == screenAuth:
		cmd = m.auth.update(msg)
	case m.overlay == overlaySearch:
		m.search.input, cmd = m.search.input.Update(msg)
	case m.overlay == overlayGroup:
		m.group.name, cmd = m.group.name.Update(msg)
	case m.overlay == overlayProfile && m.profile.editing:
		cmd = m.profile.update(msg)
	case m.focus == paneChat:
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.screen == screenAuth {
		return m.updateAuth(msg)
	}

	switch m.overlay {
	case overlayHelp:
		m.overlay = overlayNone
		return m, nil
	case overlaySearch:
		return m.updateSearch(msg)
	case overlayGroup:
		return m.updateGroup(msg)
	case overlayProfile:
		return m.updateProfile(msg)
	case overlayCall:
		return m.updateCall(msg)
	}

	if m.focus == paneChat {
		return m.updateChat(msg)
	}
	return m.updateList(msg)
}

// failureToast shows err unless the synchronizer already raised a
// notice for it.
func (m *Model) failureToast(err error) tea.Cmd {
	if err == nil || alreadyNotified(err) {
		return nil
	}
	return m.addToast(notifier.Notice{Level: notifier.LevelError, Text: err.Error(), At: m.clock.Now()})
}

func alreadyNotified(err error) bool {
	var reqErr *api.RequestError
	var authErr *api.AuthError
	return errors.As(err, &reqErr) ||
		errors.As(err, &authErr) ||
		errors.Is(err, messaging.ErrChatNotFound) ||
		errors.Is(err, messaging.ErrSessionChanged) ||
		errors.Is(err, context.Canceled)
}

func (m *Model) addToast(n notifier.Notice) tea.Cmd {
	m.nextToast++
	id := m.nextToast
	m.toasts = append(m.toasts, toast{id: id, notice: n})
	if len(m.toasts) > maxToasts {
		m.toasts = m.toasts[len(m.toasts)-maxToasts:]
	}
	return tea.Tick(m.toastTTL, func(time.Time) tea.Msg { return toastExpiredMsg{id: id} })
}

func (m *Model) dropToast(id int) {
	for i, t := range m.toasts {
		if t.id == id {
			m.toasts = append(m.toasts[:i:i], m.toasts[i+1:]...)
			return
		}
	}
}

// refresh reloads the chat list and open history from the synchronizer,
// keeping the cursor on the same chat when it is still listed.
func (m *Model) refresh() {
	var current int64
	if m.cursor < len(m.chats) {
		current = m.chats[m.cursor].ID
	}
	m.chats = m.client.Sync().Chats()
	m.cursor = 0
	m.moveCursorTo(current)
	m.renderHistory()
}

func (m *Model) moveCursorTo(chatID int64) {
	for i, c := range m.chats {
		if c.ID == chatID {
			m.cursor = i
			return
		}
	}
	if m.cursor >= len(m.chats) {
		m.cursor = max(len(m.chats)-1, 0)
	}
}

func (m *Model) layout() {
	listWidth := m.listWidth()
	chatWidth := max(m.width-listWidth-4, 20)
	// Header, footer, borders and the toast line.
	m.history.Width = chatWidth - 2
	m.history.Height = max(m.height-9, 3)
	m.input.Width = chatWidth - 6
	m.renderHistory()
}

func (m Model) listWidth() int {
	return max(m.width/3, 28)
}

func (m *Model) resetToAuth() {
	m.screen = screenAuth
	m.user = api.User{}
	m.chats = nil
	m.cursor = 0
	m.focus = paneList
	m.overlay = overlayNone
	m.call = nil
	m.input.Reset()
	m.input.Blur()
	m.auth = newAuthForm()
	m.renderHistory()
}
