package dashboard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Dashboard color palette.
const (
	ColorBorder   = lipgloss.Color("#2A2A4A")
	ColorHealthy  = lipgloss.Color("#39FF14")
	ColorWarning  = lipgloss.Color("#FFAA00")
	ColorCritical = lipgloss.Color("#FF0055")

	ColorTextPrimary   = lipgloss.Color("#FFFFFF")
	ColorTextSecondary = lipgloss.Color("#B4B4D0")
	ColorTextMuted     = lipgloss.Color("#6B6B8D")

	ColorAccent = lipgloss.Color("#00FFFF")
)

// Thresholds for per-core load severity.
const (
	WarningThreshold  = 70.0
	CriticalThreshold = 90.0
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Bold(true).
			Padding(0, 1)

	SectionTitleStyle = lipgloss.NewStyle().
				Foreground(ColorAccent).
				Bold(true)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Padding(0, 1)

	ErrStyle = lipgloss.NewStyle().
			Foreground(ColorCritical)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)
)

// ColorEnabled reports whether the terminal supports color output at all.
// Styles degrade to plain text automatically via lipgloss, but callers can
// use this to skip purely decorative elements.
func ColorEnabled() bool {
	return termenv.ColorProfile() != termenv.Ascii
}

// severityColor maps a percentage to its severity color.
func severityColor(pct float64) lipgloss.Color {
	switch {
	case pct >= CriticalThreshold:
		return ColorCritical
	case pct >= WarningThreshold:
		return ColorWarning
	default:
		return ColorHealthy
	}
}

// renderBar draws a fixed-width usage bar for one percentage.
func renderBar(pct float64, width int) string {
	if width < 4 {
		width = 4
	}
	filled := int(pct / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if !ColorEnabled() {
		return bar
	}
	return lipgloss.NewStyle().Foreground(severityColor(pct)).Render(bar)
}
