package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/winch/pkg/diagnose"
	"github.com/matzehuels/winch/pkg/report"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// AttemptBrowser - Interactive report inspection
// =============================================================================

// AttemptBrowser is the bubbletea model for stepping through the attempts of
// a report and reading their diagnostics.
type AttemptBrowser struct {
	Report *report.Report
	Cursor int
	Raw    bool // show raw diagnostic lines instead of summaries
	Height int
}

func newAttemptBrowser(r *report.Report) AttemptBrowser {
	return AttemptBrowser{Report: r, Height: 20}
}

func (m AttemptBrowser) Init() tea.Cmd {
	return nil
}

func (m AttemptBrowser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
			}
		case "down", "j":
			if m.Cursor < len(m.Report.Attempts)-1 {
				m.Cursor++
			}
		case "home", "g":
			m.Cursor = 0
		case "end", "G":
			m.Cursor = max(len(m.Report.Attempts)-1, 0)
		case "r":
			m.Raw = !m.Raw
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-4, 5)
	}
	return m, nil
}

func (m AttemptBrowser) View() string {
	var b strings.Builder
	r := m.Report

	b.WriteString(StyleTitle.Render(fmt.Sprintf("Session %s · %s", shortID(r.ID), r.Outcome)))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  r raw diagnostics  q quit"))
	b.WriteString("\n\n")

	if len(r.Attempts) == 0 {
		b.WriteString(listDimStyle.Render("  no attempts recorded"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(renderAttempts(r.Attempts, m.Cursor))
	b.WriteString("\n\n")

	a := r.Attempts[m.Cursor]
	b.WriteString(listSelectedStyle.Render(fmt.Sprintf("Attempt %d", a.Number)))
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  %s · %s", a.Outcome, formatCombination(a.Combination))))
	b.WriteString("\n")
	for _, line := range m.diagnosticLines(a.Diagnostics) {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(r.Attempts))))
	return b.String()
}

// diagnosticLines renders the diagnostics of one attempt, clipped to the
// window height.
func (m AttemptBrowser) diagnosticLines(issues []diagnose.Issue) []string {
	if len(issues) == 0 {
		return []string{listDimStyle.Render("  no diagnostics")}
	}

	var lines []string
	for _, is := range issues {
		text := is.String()
		if m.Raw && is.Raw != "" {
			text = is.Raw
		}
		style := listNormalStyle
		if !is.IsDependency() {
			style = listDimStyle
		}
		for _, l := range strings.Split(text, "\n") {
			lines = append(lines, "  "+style.Render(l))
		}
	}

	limit := max(m.Height-len(m.Report.Attempts)-8, 3)
	if len(lines) > limit {
		rest := len(lines) - limit
		lines = append(lines[:limit], listDimStyle.Render(fmt.Sprintf("  … %d more lines", rest)))
	}
	return lines
}
