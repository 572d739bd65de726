// Package styles provides consistent styling for the workbench TUI
package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	Primary    = lipgloss.Color("#2563EB")
	Secondary  = lipgloss.Color("#10B981")
	Warning    = lipgloss.Color("#F59E0B")
	Error      = lipgloss.Color("#EF4444")
	Flagged    = lipgloss.Color("#F97316")
	MutedColor = lipgloss.Color("#6B7280")
	White      = lipgloss.Color("#FFFFFF")

	Muted = lipgloss.NewStyle().Foreground(MutedColor)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	// Selection banner above every scene
	Selection = lipgloss.NewStyle().
			Bold(true).
			Foreground(White)

	StatusOK = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	StatusWarning = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	StatusError = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	TabActive = lipgloss.NewStyle().
			Foreground(White).
			Background(Primary).
			Padding(0, 2).
			Bold(true)

	TabInactive = lipgloss.NewStyle().
			Foreground(MutedColor).
			Padding(0, 2)

	Help = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			BorderBottom(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(MutedColor)

	TableRowSelected = lipgloss.NewStyle().
				Foreground(White).
				Background(Primary)

	// Text entry line for notes and lookups
	Prompt = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Warning).
		Padding(0, 1)

	Subject = lipgloss.NewStyle().
		Foreground(Warning).
		Bold(true)

	FlaggedNode = lipgloss.NewStyle().
			Foreground(Flagged)

	MetricCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(MutedColor).
			Padding(0, 2).
			Width(18).
			Align(lipgloss.Center)

	MetricValue = lipgloss.NewStyle().
			Bold(true).
			Foreground(Secondary)

	MetricLabel = lipgloss.NewStyle().
			Foreground(MutedColor)
)

// Severity returns the style for an alert severity.
func Severity(sev string) lipgloss.Style {
	switch strings.ToUpper(sev) {
	case "CRITICAL", "HIGH":
		return StatusError
	case "MEDIUM":
		return StatusWarning
	case "LOW":
		return StatusOK
	default:
		return Muted
	}
}

// CaseStatus returns the style for a case status.
func CaseStatus(status string) lipgloss.Style {
	switch status {
	case "Resolved":
		return StatusOK
	case "In Progress":
		return StatusWarning
	default:
		return Muted
	}
}
