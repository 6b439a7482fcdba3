package tui

import tea "github.com/charmbracelet/bubbletea"

// tickMsg refreshes the cooldown display.
type tickMsg struct{ Remaining int }

// resultMsg carries the outcome of a provider-bound command.
type resultMsg struct{ Err error }

// cooldownTicks forwards each cooldown tick to send as a tickMsg.
func cooldownTicks(send func(tea.Msg)) func(remaining int) {
	return func(remaining int) { send(tickMsg{Remaining: remaining}) }
}
