package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Row statuses shared by the commands that drive a ProgressModel.
const (
	StatusPending     = "pending"
	StatusQueued      = "queued"
	StatusDownloading = "downloading"
	StatusDownloaded  = "downloaded"
	StatusSaved       = "saved"
	StatusInstalling  = "installing"
	StatusInstalled   = "installed"
	StatusCancelled   = "cancelled"
	StatusRefused     = "refused"
	StatusError       = "error"
)

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)
	// TitleStyle styles the line above the table.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))

	statusStyles = map[string]lipgloss.Style{
		StatusDownloaded: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		StatusSaved:      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		StatusInstalled:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),

		StatusQueued:      lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		StatusDownloading: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		StatusInstalling:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),

		StatusCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		StatusRefused:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),

		StatusError: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),

		StatusPending: lipgloss.NewStyle().Faint(true),
	}

	finalStatuses = map[string]bool{
		StatusSaved:     true,
		StatusInstalled: true,
		StatusCancelled: true,
		StatusRefused:   true,
		StatusError:     true,
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[strings.TrimSpace(status)]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

// IsFinalStatus reports whether a row with this status needs no more work.
func IsFinalStatus(status string) bool {
	return finalStatuses[strings.TrimSpace(status)]
}
