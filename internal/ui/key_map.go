package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up        key.Binding
	down      key.Binding
	version   key.Binding
	collect   key.Binding
	stop      key.Binding
	clear     key.Binding
	exportTXT key.Binding
	exportCSV key.Binding
	phoneOnly key.Binding
	filter    key.Binding
	refresh   key.Binding
	enter     key.Binding
	back      key.Binding
	yes       key.Binding
	no        key.Binding
	help      key.Binding
	quit      key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		version:   key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "basic/pro")),
		collect:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "collect")),
		stop:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		clear:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear")),
		exportTXT: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "export txt")),
		exportCSV: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export csv")),
		phoneOnly: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "phone only")),
		filter:    key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "expr filter")),
		refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		enter:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
		back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		yes:       key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:        key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "no")),
		help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
		quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.collect, k.stop, k.version, k.clear, k.help, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.refresh},
		{k.collect, k.stop, k.version},
		{k.exportTXT, k.exportCSV, k.clear},
		{k.phoneOnly, k.filter, k.quit},
	}
}
