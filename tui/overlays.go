package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatterbox/api"
	"chatterbox/callsim"
)

// --- Find people ---

type searchPanel struct {
	input     textinput.Model
	results   []api.User
	cursor    int
	searching bool
	searched  bool
	lastQuery string
	// busy is set while a chat with the highlighted result is being opened.
	busy bool
}

func newSearchPanel() searchPanel {
	in := textinput.New()
	in.Placeholder = "name or username"
	in.CharLimit = 64
	in.Width = 36
	in.Focus()
	return searchPanel{input: in}
}

// query issues a search for q. Results for older queries are dropped
// when they arrive.
func (m *Model) query(q string) tea.Cmd {
	m.search.lastQuery = q
	m.search.searching = true
	return m.fetchUsers(q)
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.search.busy {
		if msg.Type == tea.KeyEsc {
			m.overlay = overlayNone
		}
		return m, nil
	}
	switch msg.Type {
	case tea.KeyEsc:
		m.overlay = overlayNone
		return m, nil
	case tea.KeyUp:
		if m.search.cursor > 0 {
			m.search.cursor--
		}
		return m, nil
	case tea.KeyDown:
		if m.search.cursor < len(m.search.results)-1 {
			m.search.cursor++
		}
		return m, nil
	case tea.KeyEnter:
		q := strings.TrimSpace(m.search.input.Value())
		if !m.search.searched || q != m.search.lastQuery {
			cmd := m.query(q)
			return m, cmd
		}
		if m.search.searching || len(m.search.results) == 0 {
			return m, nil
		}
		peer := m.search.results[m.search.cursor]
		m.search.busy = true
		sync, ctx := m.client.Sync(), m.ctx
		return m, func() tea.Msg {
			chatID, err := sync.StartChat(ctx, peer.ID)
			return chatStartedMsg{chatID: chatID, err: err}
		}
	}
	var cmd tea.Cmd
	m.search.input, cmd = m.search.input.Update(msg)
	if q := strings.TrimSpace(m.search.input.Value()); q != m.search.lastQuery {
		search := m.query(q)
		return m, tea.Batch(cmd, search)
	}
	return m, cmd
}

func (m Model) handleUsers(msg usersMsg) (tea.Model, tea.Cmd) {
	switch {
	case m.overlay == overlayGroup && msg.query == "":
		m.group.loading = false
		if msg.err != nil {
			m.group.err = api.ErrorText(msg.err)
			cmd := m.failureToast(msg.err)
			return m, cmd
		}
		m.group.users = msg.users
	case m.overlay == overlaySearch && msg.query == m.search.lastQuery:
		m.search.searching = false
		if msg.err != nil {
			cmd := m.failureToast(msg.err)
			return m, cmd
		}
		m.search.searched = true
		m.search.results = msg.users
		m.search.cursor = 0
	}
	return m, nil
}

func (m Model) searchView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Find people"))
	b.WriteString("\n\n")
	b.WriteString(m.search.input.View())
	b.WriteString("\n\n")
	switch {
	case m.search.busy:
		b.WriteString(mutedStyle.Render("Opening chat..."))
	case m.search.searching && len(m.search.results) == 0:
		b.WriteString(mutedStyle.Render("Searching..."))
	case m.search.searched && len(m.search.results) == 0:
		b.WriteString(mutedStyle.Render("No users found"))
	}
	for i, u := range m.search.results {
		line := fmt.Sprintf("%s @%s", u.Name, u.Username)
		if u.Online {
			line += " " + ownMessageStyle.Render("●")
		}
		if i == m.search.cursor {
			b.WriteString(selectedItemStyle.Render(line))
		} else {
			b.WriteString(itemStyle.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("type to search • ↑/↓: pick • enter: chat • esc: close"))
	return b.String()
}

// --- New group ---

type groupForm struct {
	name      textinput.Model
	users     []api.User
	selected  map[int64]bool
	cursor    int
	focusList bool
	loading   bool
	busy      bool
	err       string
}

func newGroupForm() groupForm {
	in := textinput.New()
	in.Placeholder = "group name"
	in.CharLimit = 64
	in.Width = 36
	in.Focus()
	return groupForm{name: in, selected: make(map[int64]bool), loading: true}
}

func (g groupForm) memberIDs() []int64 {
	var ids []int64
	for _, u := range g.users {
		if g.selected[u.ID] {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

func (m Model) updateGroup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEsc {
		m.overlay = overlayNone
		return m, nil
	}
	if m.group.busy {
		return m, nil
	}

	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab:
		m.group.focusList = !m.group.focusList
		if m.group.focusList {
			m.group.name.Blur()
			return m, nil
		}
		cmd := m.group.name.Focus()
		return m, cmd
	case tea.KeyEnter:
		m.group.err = ""
		m.group.busy = true
		name, ids := m.group.name.Value(), m.group.memberIDs()
		sync, ctx := m.client.Sync(), m.ctx
		return m, func() tea.Msg {
			chatID, err := sync.CreateGroup(ctx, name, ids)
			return groupCreatedMsg{chatID: chatID, err: err}
		}
	}

	if !m.group.focusList {
		var cmd tea.Cmd
		m.group.name, cmd = m.group.name.Update(msg)
		return m, cmd
	}
	switch msg.String() {
	case "up", "k":
		if m.group.cursor > 0 {
			m.group.cursor--
		}
	case "down", "j":
		if m.group.cursor < len(m.group.users)-1 {
			m.group.cursor++
		}
	case " ", "x":
		if m.group.cursor < len(m.group.users) {
			id := m.group.users[m.group.cursor].ID
			m.group.selected[id] = !m.group.selected[id]
		}
	}
	return m, nil
}

func (m Model) groupView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("New group"))
	b.WriteString("\n\n")
	b.WriteString(m.group.name.View())
	b.WriteString("\n\n")
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Members (%d selected)", len(m.group.memberIDs()))))
	b.WriteString("\n")
	if m.group.loading {
		b.WriteString(mutedStyle.Render("Loading users..."))
		b.WriteString("\n")
	}
	for i, u := range m.group.users {
		box := "[ ]"
		if m.group.selected[u.ID] {
			box = "[x]"
		}
		line := fmt.Sprintf("%s %s @%s", box, u.Name, u.Username)
		if m.group.focusList && i == m.group.cursor {
			b.WriteString(selectedItemStyle.Render(line))
		} else {
			b.WriteString(itemStyle.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	switch {
	case m.group.busy:
		b.WriteString(mutedStyle.Render("Creating..."))
	case m.group.err != "":
		b.WriteString(errorStyle.Render(m.group.err))
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("tab: name/members • space: toggle • enter: create • esc: close"))
	return b.String()
}

// --- Profile ---

const (
	profileName = iota
	profileUsername
	profileBio
)

type profilePanel struct {
	user    api.User
	editing bool
	inputs  []textinput.Model
	focus   int
	busy    bool
}

func newProfilePanel(user api.User) profilePanel {
	inputs := make([]textinput.Model, 3)
	for i := range inputs {
		in := textinput.New()
		in.CharLimit = 120
		in.Width = 36
		inputs[i] = in
	}
	inputs[profileName].Placeholder = "display name"
	inputs[profileUsername].Placeholder = "username"
	inputs[profileBio].Placeholder = "bio"
	return profilePanel{user: user, inputs: inputs}
}

func (p *profilePanel) startEditing() tea.Cmd {
	p.editing = true
	p.inputs[profileName].SetValue(p.user.Name)
	p.inputs[profileUsername].SetValue(p.user.Username)
	p.inputs[profileBio].SetValue(p.user.Bio)
	return p.setFocus(profileName)
}

func (p *profilePanel) setFocus(field int) tea.Cmd {
	for i := range p.inputs {
		p.inputs[i].Blur()
	}
	p.focus = field
	return p.inputs[field].Focus()
}

func (p *profilePanel) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	p.inputs[p.focus], cmd = p.inputs[p.focus].Update(msg)
	return cmd
}

// changes returns only the fields that differ from the saved profile.
func (p profilePanel) changes() api.ProfileUpdate {
	var update api.ProfileUpdate
	changed := func(field int, old string) *string {
		v := strings.TrimSpace(p.inputs[field].Value())
		if v == old {
			return nil
		}
		return &v
	}
	update.Name = changed(profileName, p.user.Name)
	update.Username = changed(profileUsername, p.user.Username)
	update.Bio = changed(profileBio, p.user.Bio)
	if update.Name != nil && *update.Name == "" {
		update.Name = nil
	}
	if update.Username != nil && *update.Username == "" {
		update.Username = nil
	}
	return update
}

func (m Model) updateProfile(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.profile.busy {
		return m, nil
	}
	if !m.profile.editing {
		switch msg.String() {
		case "e":
			cmd := m.profile.startEditing()
			return m, cmd
		case "esc", "q", "enter":
			m.overlay = overlayNone
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		m.profile.editing = false
		return m, nil
	case tea.KeyTab, tea.KeyDown:
		cmd := m.profile.setFocus((m.profile.focus + 1) % len(m.profile.inputs))
		return m, cmd
	case tea.KeyShiftTab, tea.KeyUp:
		cmd := m.profile.setFocus((m.profile.focus + len(m.profile.inputs) - 1) % len(m.profile.inputs))
		return m, cmd
	case tea.KeyEnter:
		update := m.profile.changes()
		if update.IsEmpty() {
			m.profile.editing = false
			return m, nil
		}
		m.profile.busy = true
		client, ctx := m.client, m.ctx
		return m, func() tea.Msg {
			user, err := client.UpdateProfile(ctx, update)
			return profileSavedMsg{user: user, err: err}
		}
	}
	cmd := m.profile.update(msg)
	return m, cmd
}

func (m Model) profileView() string {
	u := m.profile.user
	var b strings.Builder
	b.WriteString(titleStyle.Render("Profile"))
	b.WriteString("\n\n")

	if m.profile.editing {
		labels := []string{"Name", "Username", "Bio"}
		for i, in := range m.profile.inputs {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("%-9s", labels[i])))
			b.WriteString(in.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if m.profile.busy {
			b.WriteString(mutedStyle.Render("Saving..."))
		}
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("tab: next field • enter: save • esc: cancel"))
		return b.String()
	}

	b.WriteString(lipgloss.NewStyle().Bold(true).Render(u.Name))
	b.WriteString(" " + mutedStyle.Render("@"+u.Username))
	b.WriteString("\n")
	if u.Bio != "" {
		b.WriteString(u.Bio + "\n")
	}
	if u.Avatar != "" {
		b.WriteString(mutedStyle.Render("avatar: "+u.Avatar) + "\n")
	}
	if u.Banner != "" {
		b.WriteString(mutedStyle.Render("banner: "+u.Banner) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("e: edit • esc: close"))
	return b.String()
}

// --- Call ---

func (m Model) updateCall(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.call == nil {
		m.overlay = overlayNone
		return m, nil
	}
	switch msg.String() {
	case "m":
		m.call.ToggleMute()
	case "e", "esc", "enter":
		m.call.End()
		n := m.infoNotice("Call ended", callsim.FormatDuration(m.call.Duration()))
		m.log.Info().Str("call_id", m.call.ID.String()).Dur("duration", m.call.Duration()).Msg("Call ended")
		m.call = nil
		m.overlay = overlayNone
		cmd := m.addToast(n)
		return m, cmd
	}
	return m, nil
}

func (m Model) callView() string {
	if m.call == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.call.Peer.Name))
	b.WriteString("\n\n")
	b.WriteString(m.call.Label())
	b.WriteString("\n")
	if m.call.Muted() {
		b.WriteString(errorStyle.Render("Muted"))
	}
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("m: mute • e: end call"))
	return b.String()
}

// --- Help ---

func (m Model) helpView() string {
	columns := make([]string, 0, 3)
	for _, group := range m.keys.helpGroups() {
		var b strings.Builder
		for _, binding := range group {
			h := binding.Help()
			b.WriteString(sectionStyle.Render(fmt.Sprintf("%-7s", h.Key)))
			b.WriteString(" " + h.Desc + "\n")
		}
		columns = append(columns, lipgloss.NewStyle().MarginRight(3).Render(b.String()))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Keys"),
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, columns...),
		mutedStyle.Render("press any key to close"),
	)
}
