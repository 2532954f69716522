package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/tierone/installd/pkg/types"
)

// Colors adapt to light and dark terminal backgrounds.
var (
	colorPrimary   = lipgloss.AdaptiveColor{Light: "27", Dark: "39"}
	colorSuccess   = lipgloss.AdaptiveColor{Light: "28", Dark: "82"}
	colorWarning   = lipgloss.AdaptiveColor{Light: "166", Dark: "214"}
	colorError     = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	colorMuted     = lipgloss.AdaptiveColor{Light: "245", Dark: "241"}
	colorHighlight = lipgloss.AdaptiveColor{Light: "163", Dark: "213"}
)

func fg(c lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

var (
	HeaderStyle    = fg(colorPrimary).Bold(true).MarginBottom(1)
	SuccessStyle   = fg(colorSuccess)
	WarningStyle   = fg(colorWarning)
	ErrorStyle     = fg(colorError).Bold(true)
	MutedStyle     = fg(colorMuted)
	HighlightStyle = fg(colorHighlight)
	SpinnerStyle   = fg(colorPrimary)

	// SourceStyle renders the tracker column of the progress view.
	SourceStyle = lipgloss.NewStyle().Bold(true).Width(14)
	LabelStyle  = fg(colorMuted).Width(10)

	SummarySuccessStyle = SuccessStyle.Copy().Bold(true)
	SummaryErrorStyle   = ErrorStyle.Copy()

	SymbolSuccess = SuccessStyle.Render("✓")
	SymbolError   = ErrorStyle.Render("✗")
	SymbolPending = MutedStyle.Render("○")
)

// PhaseStyle returns the style a phase label is rendered with.
func PhaseStyle(p types.Phase) lipgloss.Style {
	switch p {
	case types.PhaseConfig:
		return HighlightStyle
	case types.PhaseInstall:
		return SuccessStyle
	default:
		return MutedStyle
	}
}

// StatusStyle returns the style a service status is rendered with.
func StatusStyle(s types.ServiceStatus) lipgloss.Style {
	if s == types.StatusBusy {
		return WarningStyle
	}
	return SuccessStyle
}
