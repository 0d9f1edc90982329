// Package tui holds the terminal views of the kindchat client.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#7C3AED")
	ownColor     = lipgloss.Color("#10B981")
	mutedColor   = lipgloss.Color("#9CA3AF")
	errorColor   = lipgloss.Color("#EF4444")
	accentColor  = lipgloss.Color("#F59E0B")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1).
			MarginRight(1)

	chatWindowStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)

	selectedRowStyle = lipgloss.NewStyle().
				Foreground(ownColor).
				Bold(true).
				PaddingLeft(1).
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(ownColor)

	rowStyle = lipgloss.NewStyle().PaddingLeft(2)

	unreadStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	ownMessageStyle   = lipgloss.NewStyle().Foreground(ownColor)
	otherMessageStyle = lipgloss.NewStyle().Foreground(primaryColor)
	pendingStyle      = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(1, 3).
			Width(48)
)
