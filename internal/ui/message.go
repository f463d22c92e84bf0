package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/leadsync/internal/display"
	"github.com/desertthunder/leadsync/internal/formatter"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgStateLoaded MsgKind = iota
	MsgCommandDone
	MsgExported
	MsgProgress
	MsgTick
)

type stateResult struct {
	label string
	state display.State
	err   error
}

type exportResult struct {
	format formatter.Format
	id     string
	err    error
}

// stateLoadedMsg is the constructor for [MsgStateLoaded]
func stateLoadedMsg(st display.State, err error) Msg {
	return Msg{kind: MsgStateLoaded, data: stateResult{state: st, err: err}}
}

// commandDoneMsg is the constructor for [MsgCommandDone]. label names the command in the status line.
func commandDoneMsg(label string, st display.State, err error) Msg {
	return Msg{kind: MsgCommandDone, data: stateResult{label: label, state: st, err: err}}
}

// exportedMsg is the constructor for [MsgExported]
func exportedMsg(f formatter.Format, id string, err error) Msg {
	return Msg{kind: MsgExported, data: exportResult{format: f, id: id, err: err}}
}

// progressMsg is the constructor for [MsgProgress]
func progressMsg(percent int) Msg {
	return Msg{kind: MsgProgress, data: percent}
}

func tickMsg() Msg {
	return Msg{kind: MsgTick}
}

// StateUpdated wraps a state read outside the model, e.g. by [display.Client.Run], for [tea.Program.Send].
func StateUpdated(st display.State) tea.Msg {
	return stateLoadedMsg(st, nil)
}
