package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("39")  // Cyan
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorMuted     = lipgloss.Color("245") // Gray
	ColorHighlight = lipgloss.Color("226") // Yellow
)

// Styles for various UI elements
var (
	// Text styles
	Bold      = lipgloss.NewStyle().Bold(true)
	Dim       = lipgloss.NewStyle().Foreground(ColorMuted)
	Highlight = lipgloss.NewStyle().Foreground(ColorHighlight)
	Header    = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	// Status styles
	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning)
	Error   = lipgloss.NewStyle().Foreground(ColorError)

	// Search result styles
	ResultHeader = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)
	ResultScore = lipgloss.NewStyle().
			Foreground(ColorSuccess)
	ResultContent = lipgloss.NewStyle().
			Foreground(ColorMuted).
			PaddingLeft(2)
)

// FormatScore formats a similarity score as a percentage.
func FormatScore(score float64) string {
	return ResultScore.Render(fmt.Sprintf("(%.1f%% match)", score*100))
}
