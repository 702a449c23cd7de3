package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/winch/pkg/diagnose"
	"github.com/matzehuels/winch/pkg/report"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - commands
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleHighlight for emphasized values.
	StyleHighlight = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleSuccess for success messages.
	StyleSuccess = lipgloss.NewStyle().Foreground(colorGreen)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	// StyleError for failures.
	StyleError = lipgloss.NewStyle().Foreground(colorRed)
)

// =============================================================================
// Internal Styles
// =============================================================================

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleHeader  = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	styleCommand = lipgloss.NewStyle().Foreground(colorBlue)
)

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

// printSuccess prints a success message.
func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconSuccess.Render(iconSuccess) + " " + msg)
}

// printError prints an error message.
func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconError.Render(iconError) + " " + msg)
}

// printWarning prints a warning message.
func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconWarning.Render(iconWarning) + " " + StyleWarning.Render(msg))
}

// printInfo prints an info/status message.
func printInfo(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(styleIconInfo.Render(iconInfo) + " " + msg)
}

// printDetail prints a detail line (indented).
func printDetail(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println("  " + StyleDim.Render(msg))
}

// printKeyValue prints a labeled value.
func printKeyValue(key, value string) {
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(12)
	fmt.Println(keyStyle.Render(key) + " " + StyleValue.Render(value))
}

// printNextStep prints a suggested next command.
func printNextStep(description, cmd string) {
	fmt.Println(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}

// printNewline prints an empty line.
func printNewline() {
	fmt.Println()
}

// =============================================================================
// Reports
// =============================================================================

// printReport prints the attempt table followed by the outcome summary.
func printReport(r *report.Report) {
	if r == nil {
		return
	}
	if len(r.Attempts) > 0 {
		printNewline()
		fmt.Println(renderAttempts(r.Attempts, -1))
		printNewline()
	}
	printOutcome(r)
}

// printOutcome prints what the session achieved and what to do next.
func printOutcome(r *report.Report) {
	elapsed := r.Duration().Round(time.Millisecond)
	manifest := filepath.Join(r.Project, r.Manifest)

	switch r.Outcome {
	case report.Resolved:
		win, _ := r.Winning()
		switch {
		case len(win) == 0:
			printSuccess("%s already builds; nothing to change %s", r.Manifest, StyleDim.Render(fmt.Sprintf("(%s)", elapsed)))
		case r.DryRun:
			printSuccess("Resolved after %d attempts %s", len(r.Attempts), StyleDim.Render(fmt.Sprintf("(%s)", elapsed)))
			printDetail("Dry run: %s was not written", manifest)
			for _, line := range requirementLines(win) {
				printDetail("%s %s", iconArrow, line)
			}
		default:
			printSuccess("Resolved after %d attempts %s", len(r.Attempts), StyleDim.Render(fmt.Sprintf("(%s)", elapsed)))
			printKeyValue("Updated", manifest)
			for _, line := range requirementLines(r.Committed) {
				printDetail("%s %s", iconArrow, line)
			}
		}

	case report.Exhausted:
		printWarning("No working combination within the rollback budget (%d attempts)", len(r.Attempts))
		printDetail("%s is unchanged", manifest)
		if closest := r.ClosestCombination(); len(closest) > 0 {
			printDetail("Closest attempt: %s", formatCombination(closest))
		}
		printNextStep("Search deeper", "winch --max-rollbacks 10")

	case report.Unresolvable:
		printError("The build fails for reasons unrelated to dependencies")
		printDetail("%s is unchanged", manifest)
		if last := lastAttempt(r); last != nil {
			for _, is := range last.Diagnostics {
				printDetail("%s", firstLine(is.String()))
			}
		}

	case report.Aborted:
		printError("Aborted after %d attempts: %s", len(r.Attempts), r.Error)
		printDetail("%s is unchanged", manifest)
	}
}

// renderAttempts draws the attempt table. The row at index selected, if any,
// is highlighted.
func renderAttempts(attempts []report.Attempt, selected int) string {
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, []string{
			fmt.Sprintf("%d", a.Number),
			formatCombination(a.Combination),
			string(a.Outcome),
			summarizeDiagnostics(a.Diagnostics),
			a.Duration.Round(time.Millisecond).String(),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("#", "Combination", "Result", "Diagnostics", "Time").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader.Padding(0, 1)
			}
			base := lipgloss.NewStyle().Padding(0, 1)
			if row == selected {
				base = base.Bold(true)
			}
			if row < 0 || row >= len(attempts) {
				return base
			}
			switch {
			case col == 2 && attempts[row].Outcome == report.Success:
				return base.Foreground(colorGreen)
			case col == 2:
				return base.Foreground(colorRed)
			case col == 0 || col == 4:
				return base.Foreground(colorGray)
			}
			return base
		})

	return t.Render()
}

// summarizeDiagnostics condenses an attempt's diagnostics to one cell.
func summarizeDiagnostics(issues []diagnose.Issue) string {
	if len(issues) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		switch is.Kind {
		case diagnose.Missing, diagnose.Conflict:
			parts = append(parts, is.Kind.String()+" "+is.Crate)
		default:
			parts = append(parts, truncate(firstLine(is.Raw), 48))
		}
	}
	if len(parts) > 3 {
		parts = append(parts[:3], fmt.Sprintf("+%d more", len(parts)-3))
	}
	return strings.Join(parts, ", ")
}

// requirementLines renders a combination as manifest lines ("serde = \"1.0\"").
func requirementLines(m map[string]string) []string {
	lines := make([]string, 0, len(m))
	for _, part := range strings.Fields(formatCombination(m)) {
		crate, version, ok := strings.Cut(part, "@")
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s = %q", crate, version))
	}
	return lines
}

func lastAttempt(r *report.Report) *report.Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

// =============================================================================
// Utilities
// =============================================================================

// shortID returns the first block of a report ID, enough for prefix lookup.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// formatRelativeTime renders t relative to now ("5m ago").
func formatRelativeTime(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Local().Format("Jan 2, 2006")
	}
}
