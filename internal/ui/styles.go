package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ironsite/pipewatch/internal/domain/pipeline"
)

// Palette — muted, dark-terminal friendly.
var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(purple)
	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	activeStyle  = lipgloss.NewStyle().Foreground(yellow)
	mutedStyle   = lipgloss.NewStyle().Foreground(dim)
	faintStyle   = lipgloss.NewStyle().Foreground(faint)
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

// stateGlyph returns the one-character marker for a stage state.
func stateGlyph(state pipeline.StageState) string {
	switch state {
	case pipeline.StageStateCompleted:
		return successStyle.Render("✓")
	case pipeline.StageStateFailed:
		return errorStyle.Render("✗")
	case pipeline.StageStateStarted, pipeline.StageStateInProgress:
		return activeStyle.Render("●")
	default:
		return faintStyle.Render("○")
	}
}

// stateStyle returns the text style for a stage line in the given state.
func stateStyle(state pipeline.StageState) lipgloss.Style {
	switch state {
	case pipeline.StageStateCompleted:
		return successStyle
	case pipeline.StageStateFailed:
		return errorStyle
	case pipeline.StageStateStarted, pipeline.StageStateInProgress:
		return boldStyle
	default:
		return mutedStyle
	}
}
