package tui

import "github.com/charmbracelet/lipgloss"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	green     = lipgloss.AdaptiveColor{Light: "#02BA84", Dark: "#02BF87"}
	red       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	yellow    = lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#ECFD65"}

	titleStyle = lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true)

	timeStyle = lipgloss.NewStyle().
			Foreground(subtle)

	typeStyle = lipgloss.NewStyle().
			Foreground(highlight)

	okStyle = lipgloss.NewStyle().
		Foreground(green)

	warnStyle = lipgloss.NewStyle().
			Foreground(yellow)

	errStyle = lipgloss.NewStyle().
			Foreground(red).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(highlight)

	infoStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(subtle)
)
