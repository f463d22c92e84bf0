// Package ui implements an interactive terminal display using bubbletea's Elm architecture.
//
// The TUI is a renderer over a [display.Client] and keeps no records of its own. It has three views:
//  1. [ListView] : Browse the saved list with stats and the collection progress bar
//  2. [ConfirmClearView] : Confirm clearing the displayed namespace
//  3. [FilterView] : Enter an expr filter expression
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Snapshots are re-read on a tick, on focus regain and after every command. Progress pushed by the broker flows through
// the client's channel.
//
// Keyboard navigation uses vim-style bindings (j/k, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
