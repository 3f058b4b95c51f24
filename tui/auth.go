package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatterbox/api"
	"chatterbox/messaging"
)

const (
	fieldUsername = iota
	fieldName
	fieldPassword
)

type authForm struct {
	register bool
	inputs   []textinput.Model
	focus    int
	busy     bool
	err      string
}

func newAuthForm() authForm {
	inputs := make([]textinput.Model, 3)
	for i := range inputs {
		in := textinput.New()
		in.CharLimit = 64
		in.Width = 30
		inputs[i] = in
	}
	inputs[fieldUsername].Placeholder = "username"
	inputs[fieldName].Placeholder = "display name"
	inputs[fieldPassword].Placeholder = "password"
	inputs[fieldPassword].EchoMode = textinput.EchoPassword
	inputs[fieldPassword].EchoCharacter = '•'
	inputs[fieldUsername].Focus()
	return authForm{inputs: inputs}
}

// fields lists the inputs shown in the current mode, in tab order.
func (f authForm) fields() []int {
	if f.register {
		return []int{fieldUsername, fieldName, fieldPassword}
	}
	return []int{fieldUsername, fieldPassword}
}

func (f *authForm) move(delta int) {
	fields := f.fields()
	pos := 0
	for i, field := range fields {
		if field == f.focus {
			pos = i
		}
	}
	pos = (pos + delta + len(fields)) % len(fields)
	f.setFocus(fields[pos])
}

func (f *authForm) setFocus(field int) {
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
	f.focus = field
	f.inputs[field].Focus()
}

func (f *authForm) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f authForm) value(field int) string {
	return f.inputs[field].Value()
}

func (m Model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.auth.busy {
		return m, nil
	}
	switch msg.String() {
	case "tab", "down":
		m.auth.move(1)
		return m, nil
	case "shift+tab", "up":
		m.auth.move(-1)
		return m, nil
	case "ctrl+r":
		m.auth.register = !m.auth.register
		m.auth.err = ""
		m.auth.setFocus(fieldUsername)
		return m, nil
	case "enter":
		return m.submitAuth()
	}
	m.auth.err = ""
	cmd := m.auth.update(msg)
	return m, cmd
}

func (m Model) submitAuth() (tea.Model, tea.Cmd) {
	fields := m.auth.fields()
	if m.auth.focus != fields[len(fields)-1] {
		m.auth.move(1)
		return m, nil
	}

	username := strings.TrimSpace(m.auth.value(fieldUsername))
	name := strings.TrimSpace(m.auth.value(fieldName))
	password := m.auth.value(fieldPassword)
	register := m.auth.register
	if username == "" || password == "" || (register && name == "") {
		if register {
			m.auth.err = "All fields are required"
		} else {
			m.auth.err = "Username and password are required"
		}
		return m, nil
	}

	m.auth.busy = true
	m.auth.err = ""
	client, ctx := m.client, m.ctx
	return m, func() tea.Msg {
		var user api.User
		var err error
		if register {
			user, err = client.Register(ctx, username, name, password)
		} else {
			user, err = client.Login(ctx, username, password)
		}
		return authDoneMsg{user: user, err: err}
	}
}

func (m Model) handleAuthDone(msg authDoneMsg) (tea.Model, tea.Cmd) {
	m.auth.busy = false
	if msg.err != nil {
		m.auth.inputs[fieldPassword].Reset()
		switch {
		case errors.Is(msg.err, messaging.ErrMissingCredentials):
			m.auth.err = "Username and password are required"
			return m, nil
		case errors.Is(msg.err, context.Canceled):
			return m, nil
		}
		m.auth.err = api.ErrorText(msg.err)
		cmd := m.failureToast(msg.err)
		return m, cmd
	}

	m.log.Info().Int64("user_id", msg.user.ID).Msg("Signed in")
	m.screen = screenMain
	m.user = msg.user
	m.focus = paneList
	m.overlay = overlayNone
	m.auth = newAuthForm()
	m.refresh()
	return m, m.startPolling()
}

func (m Model) authView() string {
	title := "Sign in"
	toggle := "ctrl+r: create an account"
	if m.auth.register {
		title = "Create account"
		toggle = "ctrl+r: sign in instead"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("chatterbox"))
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(title))
	b.WriteString("\n\n")
	for _, field := range m.auth.fields() {
		b.WriteString(m.auth.inputs[field].View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	switch {
	case m.auth.busy:
		b.WriteString(mutedStyle.Render("Please wait..."))
	case m.auth.err != "":
		b.WriteString(errorStyle.Render(m.auth.err))
	}
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("tab: next field • enter: submit • " + toggle))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, boxStyle.Render(b.String()))
}
