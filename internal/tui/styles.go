package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	clientLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	avatarLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	clientTextStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	avatarTextStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))

	inputStyle   = lipgloss.NewStyle().PaddingLeft(1)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)
