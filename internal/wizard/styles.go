package wizard

import (
	"github.com/charmbracelet/lipgloss"
)

// The wizard follows the same green/red/plain-glyph aesthetic as the run
// report, so init output does not look like a different tool.
var (
	colorAccent = lipgloss.Color("35")  // Green, matches the report's applied badge
	colorOK     = lipgloss.Color("35")  // Green
	colorFail   = lipgloss.Color("160") // Red
	colorNote   = lipgloss.Color("68")  // Blue
	colorFaint  = lipgloss.Color("243") // Gray
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true).
			Padding(0, 1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorAccent).
				Bold(true).
				MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorFaint)

	successStyle = lipgloss.NewStyle().
			Foreground(colorOK).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorFail).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(colorNote)

	selectedStyle = lipgloss.NewStyle().
			Foreground(colorOK).
			Bold(true)

	unselectedStyle = lipgloss.NewStyle().
			Foreground(colorFaint)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorFaint).
			Padding(1, 2)

	// Notes get a left rule instead of a boxed border so they read as
	// asides, not dialogs.
	noteStyle = lipgloss.NewStyle().
			Foreground(colorNote).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(colorNote).
			PaddingLeft(1).
			MarginTop(1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorFaint).
			Italic(true).
			MarginTop(1)
)

// Plain glyphs, consistent with the ✓/✗ the apply report prints.
const (
	iconCheck   = "✓"
	iconCross   = "✗"
	iconArrow   = "›"
	iconSpinner = "…"
)

func renderHeader(text string) string {
	return headerStyle.Render("schemapatch · " + text)
}

func renderSectionHeader(text string) string {
	return sectionHeaderStyle.Render(iconArrow + " " + text)
}

func renderSuccess(text string) string {
	return successStyle.Render(iconCheck + " " + text)
}

func renderError(text string) string {
	return errorStyle.Render(iconCross + " " + text)
}

func renderInfo(text string) string {
	return noteStyle.Render(text)
}

func renderOption(selected bool, text string) string {
	if selected {
		return selectedStyle.Render(iconArrow + " " + text)
	}
	return unselectedStyle.Render("  " + text)
}

func renderStatusBar(text string) string {
	return statusBarStyle.Render(text)
}
