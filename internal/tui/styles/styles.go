// Package styles holds the lipgloss palette and styles shared by the status
// view and the CLI's plain output.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/workchain/internal/work"
)

var (
	// Colors - all meet WCAG AA contrast (4.5:1) on dark terminals
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	BorderColor    = lipgloss.Color("#6B7280") // Gray
	BlueColor      = lipgloss.Color("#60A5FA") // Blue

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)

	// State colors
	StateBlocked   = MutedColor
	StateEnqueued  = BlueColor
	StateRunning   = WarningColor
	StateSucceeded = SecondaryColor
	StateFailed    = ErrorColor
	StateCancelled = lipgloss.Color("#FB923C") // Orange

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	StatusBadge = lipgloss.NewStyle().
			Bold(true).
			Width(11)

	ContentBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)
)

// StateColor returns the color used for a TaskRun state.
func StateColor(s work.State) lipgloss.Color {
	switch s {
	case work.StateEnqueued:
		return StateEnqueued
	case work.StateRunning:
		return StateRunning
	case work.StateSucceeded:
		return StateSucceeded
	case work.StateFailed:
		return StateFailed
	case work.StateCancelled:
		return StateCancelled
	default:
		return StateBlocked
	}
}

// State renders a state as a fixed-width colored badge.
func State(s work.State) string {
	return StatusBadge.Foreground(StateColor(s)).Render(s.String())
}
