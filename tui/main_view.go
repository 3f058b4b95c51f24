package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatterbox/api"
	"chatterbox/callsim"
	"chatterbox/notifier"
)

func (m Model) current() (api.Chat, bool) {
	if m.cursor < 0 || m.cursor >= len(m.chats) {
		return api.Chat{}, false
	}
	return m.chats[m.cursor], true
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sync := m.client.Sync()
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.overlay = overlayHelp
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.chats)-1 {
			m.cursor++
		}
		return m, nil
	case key.Matches(msg, m.keys.Search):
		m.search = newSearchPanel()
		m.overlay = overlaySearch
		return m, nil
	case key.Matches(msg, m.keys.NewGroup):
		m.group = newGroupForm()
		m.overlay = overlayGroup
		return m, m.fetchUsers("")
	case key.Matches(msg, m.keys.Profile):
		m.profile = newProfilePanel(m.user)
		m.overlay = overlayProfile
		return m, nil
	case key.Matches(msg, m.keys.Logout):
		client := m.client
		return m, func() tea.Msg { return loggedOutMsg{err: client.Logout()} }
	}

	chat, ok := m.current()
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Open):
		focus := m.focusChat()
		return m, tea.Batch(focus, m.run("select", func(ctx context.Context) error {
			return sync.SelectChat(ctx, chat.ID)
		}))
	case key.Matches(msg, m.keys.Focus):
		if sync.SelectedID() == 0 {
			return m, nil
		}
		cmd := m.focusChat()
		return m, cmd
	case key.Matches(msg, m.keys.Pin):
		return m, m.run("pin", func(ctx context.Context) error {
			return sync.TogglePin(ctx, chat.ID)
		})
	case key.Matches(msg, m.keys.Clear):
		sync.ClearChat(chat.ID)
		m.refresh()
		cmd := m.addToast(m.infoNotice("History cleared", chat.Name))
		return m, cmd
	case key.Matches(msg, m.keys.Delete):
		sync.DeleteChat(chat.ID)
		m.refresh()
		cmd := m.addToast(m.infoNotice("Chat deleted", chat.Name))
		return m, cmd
	case key.Matches(msg, m.keys.Call):
		m.call = callsim.Start(callsim.PeerFromChat(chat), m.clock)
		m.overlay = overlayCall
		m.log.Info().Str("call_id", m.call.ID.String()).Str("peer", chat.Name).Msg("Call started")
		return m, m.tickCall()
	}
	return m, nil
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Focus):
		m.focus = paneList
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.history.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.history.HalfViewDown()
		return m, nil
	case msg.Type == tea.KeyEnter:
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.input.Reset()
		sync, ctx := m.client.Sync(), m.ctx
		return m, func() tea.Msg {
			_, err := sync.SendMessage(ctx, text)
			return sentMsg{text: text, err: err}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// focusChat moves focus to the message input of the open chat.
func (m *Model) focusChat() tea.Cmd {
	m.focus = paneChat
	m.renderHistory()
	return m.input.Focus()
}

func (m Model) fetchUsers(query string) tea.Cmd {
	sync, ctx := m.client.Sync(), m.ctx
	return func() tea.Msg {
		users, err := sync.SearchUsers(ctx, query)
		return usersMsg{query: query, users: users, err: err}
	}
}

func (m Model) infoNotice(title, text string) notifier.Notice {
	return notifier.Notice{Level: notifier.LevelInfo, Title: title, Text: text, At: m.clock.Now()}
}

// renderHistory fills the viewport with the selected chat's messages.
func (m *Model) renderHistory() {
	sync := m.client.Sync()
	chatID := sync.SelectedID()
	if chatID == 0 {
		m.history.SetContent(mutedStyle.Render("Select a chat to start messaging"))
		return
	}
	messages, ok := sync.Messages(chatID)
	switch {
	case !ok:
		m.history.SetContent(mutedStyle.Render("Loading..."))
		return
	case len(messages) == 0:
		m.history.SetContent(mutedStyle.Render("No messages yet"))
		return
	}

	width := max(m.history.Width, 10)
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, lipgloss.NewStyle().Width(width).Render(m.formatMessage(msg)))
	}
	m.history.SetContent(strings.Join(lines, "\n"))
	m.history.GotoBottom()
}

func (m Model) formatMessage(msg api.Message) string {
	stamp := mutedStyle.Render(msg.CreatedAt.Local().Format("15:04"))
	if msg.SenderID == m.user.ID {
		mark := "✓"
		if msg.Read {
			mark = "✓✓"
		}
		return fmt.Sprintf("%s %s %s %s", stamp, ownMessageStyle.Render("You:"), msg.Text, mutedStyle.Render(mark))
	}
	name := msg.Name
	if name == "" {
		name = msg.Username
	}
	if name == "" {
		name = fmt.Sprintf("user %d", msg.SenderID)
	}
	return fmt.Sprintf("%s %s %s", stamp, otherMessageStyle.Render(name+":"), msg.Text)
}

// --- Views ---

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.screen == screenAuth {
		return m.authView()
	}

	var body string
	switch m.overlay {
	case overlayHelp:
		body = m.overlayView(m.helpView())
	case overlaySearch:
		body = m.overlayView(m.searchView())
	case overlayGroup:
		body = m.overlayView(m.groupView())
	case overlayProfile:
		body = m.overlayView(m.profileView())
	case overlayCall:
		body = m.overlayView(m.callView())
	default:
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.listView(), m.chatView())
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusLine())
}

func (m Model) overlayView(content string) string {
	return lipgloss.Place(m.width, max(m.height-1, 1), lipgloss.Center, lipgloss.Center, modalStyle.Render(content))
}

func (m Model) listView() string {
	width := m.listWidth()
	height := max(m.height-3, 3)
	now := m.clock.Now()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Chats"))
	b.WriteString("\n\n")
	if len(m.chats) == 0 {
		b.WriteString(mutedStyle.Render("No chats yet. Press / to find people."))
	}
	for i, chat := range m.chats {
		name := chat.Name
		if chat.Pinned {
			name = "📌 " + name
		}
		if !chat.IsGroup && chat.Online {
			name = ownMessageStyle.Render("●") + " " + name
		}
		line := name
		if ts := notifier.FormatTime(chat.Timestamp(), now); ts != "" {
			line += " " + mutedStyle.Render(ts)
		}
		if chat.UnreadCount > 0 {
			line += " " + unreadStyle.Render(fmt.Sprint(chat.UnreadCount))
		}
		preview := chat.LastMessage
		if preview == "" {
			preview = "No messages yet"
		}
		preview = mutedStyle.Render(truncate(preview, width-6))

		style := itemStyle
		if i == m.cursor {
			style = selectedItemStyle
		}
		b.WriteString(style.Render(line + "\n" + preview))
		b.WriteString("\n")
	}

	border := paneStyle
	if m.focus == paneList {
		border = border.BorderForeground(activeBorder)
	}
	return border.Width(width).Height(height).Render(b.String())
}

func (m Model) chatView() string {
	width := max(m.width-m.listWidth()-4, 20)
	height := max(m.height-3, 3)

	chat, ok := m.client.Sync().Selected()
	header := mutedStyle.Render("No chat open")
	if ok {
		header = chat.Name
		switch {
		case chat.IsGroup:
			header += mutedStyle.Render(fmt.Sprintf("  %d members", max(chat.MemberCount, len(chat.MemberIDs))))
		case chat.Online:
			header += ownMessageStyle.Render("  online")
		}
	}

	footer := mutedStyle.Render("enter: open • tab: switch pane")
	if m.focus == paneChat {
		footer = m.input.View()
	}

	border := paneStyle
	if m.focus == paneChat {
		border = border.BorderForeground(activeBorder)
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Width(width).Render(header),
		m.history.View(),
		footerStyle.Width(width).Render(footer),
	)
	return border.Width(width).Height(height).Render(content)
}

// statusLine shows the newest toast, or the signed-in user and key hints.
func (m Model) statusLine() string {
	if len(m.toasts) > 0 {
		parts := make([]string, 0, len(m.toasts))
		for _, t := range m.toasts {
			style := toastInfoStyle
			if t.notice.Level == notifier.LevelError {
				style = toastErrorStyle
			}
			parts = append(parts, style.Render(t.notice.String()))
		}
		return strings.Join(parts, mutedStyle.Render("  |  "))
	}
	return mutedStyle.Render(fmt.Sprintf("@%s • ? help • q quit", m.user.Username))
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
