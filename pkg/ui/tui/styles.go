package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	turfGreen    = lipgloss.Color("#2E8B57")
	silkBlue     = lipgloss.Color("#4F9DDE")
	cautionAmber = lipgloss.Color("#E0A526")
	alertRed     = lipgloss.Color("#D9534F")
	dimWhite     = lipgloss.Color("#B0B0B0")
	faintGrey    = lipgloss.Color("#626262")

	logoStyle = lipgloss.NewStyle().
			Foreground(turfGreen).
			Bold(true).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(silkBlue).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Background(silkBlue).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(silkBlue).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	successStyle = lipgloss.NewStyle().
			Foreground(turfGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(alertRed).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(cautionAmber).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	activeStyle = lipgloss.NewStyle().
			Foreground(turfGreen).
			Bold(true)

	logTimestampStyle = lipgloss.NewStyle().
				Foreground(faintGrey)

	helpStyle = lipgloss.NewStyle().
			Foreground(faintGrey).
			PaddingLeft(1)
)

// stateStyle picks the glyph and style for a month state
func stateStyle(s MonthState) (string, lipgloss.Style) {
	switch s {
	case MonthActive:
		return "▶", activeStyle
	case MonthDone:
		return "✓", successStyle
	case MonthResumed:
		return "↺", mutedStyle
	default:
		return "·", mutedStyle
	}
}
