// Package tui provides the terminal UI components for vecimport.
package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Color palette
var (
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#22D3EE"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#38A169", Dark: "#48BB78"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#D69E2E", Dark: "#F6E05E"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#E53E3E", Dark: "#FC8181"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#718096", Dark: "#A0AEC0"}
	ColorText    = lipgloss.AdaptiveColor{Light: "#1A202C", Dark: "#F7FAFC"}
	ColorBorder  = lipgloss.AdaptiveColor{Light: "#CBD5E0", Dark: "#4A5568"}
)

// Base styles
var (
	// TitleStyle for screen headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// SubtitleStyle for panel headers
	SubtitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// LabelStyle for key names in key-value pairs
	LabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorMuted)

	// ValueStyle for values
	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	// SuccessStyle for success messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// WarningStyle for warning messages
	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// ErrorStyle for error messages
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	// MutedStyle for less important text
	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// SpinnerStyle for spinner text
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary)

	// SelectedStyle for the highlighted table row
	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)
)

// Panel styles
var (
	// PanelStyle for bordered panels
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	// ActivePanelStyle for the focused panel
	ActivePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorPrimary).
				Padding(0, 1)
)

// Progress bar styles
var (
	ProgressBarFilled = lipgloss.NewStyle().
				Foreground(ColorSuccess)

	ProgressBarEmpty = lipgloss.NewStyle().
				Foreground(ColorMuted)
)

// IsTTY returns true if stdout is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ProgressBar renders a done/total bar of the given width.
func ProgressBar(current, total, width int) string {
	if width <= 0 {
		width = 20
	}
	percent := 0.0
	if total > 0 {
		percent = float64(current) / float64(total)
	}
	filled := min(int(percent*float64(width)), width)
	empty := width - filled
	return ProgressBarFilled.Render(strings.Repeat("█", filled)) +
		ProgressBarEmpty.Render(strings.Repeat("░", empty))
}

// StatusStyle maps a job status to its display style.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "processing", "completed":
		return SuccessStyle
	case "pending", "paused":
		return WarningStyle
	case "cancelled", "failed":
		return ErrorStyle
	}
	return MutedStyle
}

// PadRight pads s with spaces to the given display width, emoji-safe.
func PadRight(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// Truncate shortens s to the given display width with an ellipsis.
func Truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}
