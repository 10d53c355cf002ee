package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used across the console screens.
type Styles struct {
	header   lipgloss.Style
	footer   lipgloss.Style
	pane     lipgloss.Style
	paneOn   lipgloss.Style
	title    lipgloss.Style
	label    lipgloss.Style
	selected lipgloss.Style
	dim      lipgloss.Style
	errText  lipgloss.Style
	okText   lipgloss.Style
	warnText lipgloss.Style
	modal    lipgloss.Style
	button   lipgloss.Style
	buttonOn lipgloss.Style
}

func newStyles() Styles {
	return Styles{
		header: lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Bold(true).
			Padding(0, 1),
		footer: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(0, 1),
		pane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		paneOn: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1),
		title: lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Bold(true),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("7")),
		selected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")),
		dim: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")),
		errText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		okText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")),
		warnText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		modal: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("245")).
			Padding(1, 4).
			Align(lipgloss.Center),
		button: lipgloss.NewStyle().
			Foreground(lipgloss.Color("7")).
			Padding(0, 2),
		buttonOn: lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2),
	}
}
