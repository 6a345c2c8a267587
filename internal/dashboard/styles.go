package dashboard

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	dangerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00"))
	goodStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD7AF"))
	faintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
	incidentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#AF005F")).Padding(0, 1)
)
