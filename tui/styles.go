package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorAccent = lipgloss.Color("#7D56F4")
	ColorWhite  = lipgloss.Color("#FAFAFA")
	ColorDim    = lipgloss.Color("#6C6C6C")
	ColorError  = lipgloss.Color("#FF5F87")
	ColorOK     = lipgloss.Color("#5FD787")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	DimStyle     = lipgloss.NewStyle().Foreground(ColorDim)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorError)
	SuccessStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorOK)
	KeyStyle     = lipgloss.NewStyle().Foreground(ColorWhite).Bold(true)

	CellStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorDim).
		Foreground(ColorWhite).
		Width(3).
		Align(lipgloss.Center)

	FocusedCellStyle = CellStyle.BorderForeground(ColorAccent)
)

// renderCells draws the code cells side by side, highlighting focus.
func renderCells(cells []string, focus int, active bool) string {
	out := make([]string, len(cells))
	for i, c := range cells {
		st := CellStyle
		if active && i == focus {
			st = FocusedCellStyle
		}
		if c == "" {
			c = " "
		}
		out[i] = st.Render(c)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, out...)
}

// renderBottomBar renders key hints as "label key" pairs.
func renderBottomBar(hints [][2]string) string {
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, DimStyle.Render(h[0])+" "+KeyStyle.Render(h[1]))
	}
	return strings.Join(parts, DimStyle.Render("  •  "))
}
