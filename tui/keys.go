package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the bindings of the main screen. Overlays and the auth
// form use fixed keys listed in their footers.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Open     key.Binding
	Back     key.Binding
	Focus    key.Binding
	PageUp   key.Binding
	PageDown key.Binding

	Pin    key.Binding
	Clear  key.Binding
	Delete key.Binding

	Search   key.Binding
	NewGroup key.Binding
	Profile  key.Binding
	Call     key.Binding
	Logout   key.Binding

	Help key.Binding
	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "previous chat"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "next chat"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter", "l", "right"),
		key.WithHelp("enter", "open chat"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back to list"),
	),
	Focus: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "switch pane"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "ctrl+u"),
		key.WithHelp("pgup", "scroll up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "ctrl+d"),
		key.WithHelp("pgdn", "scroll down"),
	),
	Pin: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pin/unpin"),
	),
	Clear: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "clear history"),
	),
	Delete: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "delete chat"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "find people"),
	),
	NewGroup: key.NewBinding(
		key.WithKeys("g"),
		key.WithHelp("g", "new group"),
	),
	Profile: key.NewBinding(
		key.WithKeys("P"),
		key.WithHelp("P", "profile"),
	),
	Call: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "call"),
	),
	Logout: key.NewBinding(
		key.WithKeys("L"),
		key.WithHelp("L", "log out"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// helpGroups is the layout of the help overlay.
func (k KeyMap) helpGroups() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Open, k.Focus, k.Back, k.PageUp, k.PageDown},
		{k.Pin, k.Clear, k.Delete, k.Call},
		{k.Search, k.NewGroup, k.Profile, k.Logout, k.Help, k.Quit},
	}
}
