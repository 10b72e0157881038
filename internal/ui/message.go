package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/phx/internal/tasks"
)

// MsgKind enumerates all message types of the progress view.
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
	MsgProgressUpdate MsgKind = iota
	MsgNotice
	MsgRunComplete
)

// runOutcome is what the engine goroutine hands back once Run returns.
type runOutcome struct {
	result *tasks.RunResult
	err    error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// noticeMsg is the constructor for [MsgNotice]
func noticeMsg(text string) Msg {
	return Msg{kind: MsgNotice, data: text}
}

// runCompleteMsg is the constructor for [MsgRunComplete]
func runCompleteMsg(result *tasks.RunResult, err error) Msg {
	return Msg{kind: MsgRunComplete, data: runOutcome{result, err}}
}
