package cli

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/winch/pkg/config"
	"github.com/matzehuels/winch/pkg/errors"
	"github.com/matzehuels/winch/pkg/report"
)

// historyCommand creates the report history command.
func (c *CLI) historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect reports of past sessions",
	}

	cmd.AddCommand(c.historyListCommand())
	cmd.AddCommand(c.historyShowCommand())

	return cmd
}

// historyListCommand creates the "history list" subcommand.
func (c *CLI) historyListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := historyStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			reports, err := store.List(ctx, limit)
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				printInfo("No sessions recorded yet")
				return nil
			}
			fmt.Println(renderHistory(reports))
			printNextStep("Details", "winch history show <id>")
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sessions to list (0 for all)")
	return cmd
}

// historyShowCommand creates the "history show" subcommand.
func (c *CLI) historyShowCommand() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session; any unique ID prefix works",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := historyStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}

			if interactive {
				if !isInteractive() {
					return errors.New(errors.ErrCodeUnsupported, "--interactive needs a terminal")
				}
				_, err := tea.NewProgram(newAttemptBrowser(r), tea.WithContext(ctx)).Run()
				return err
			}

			printReportHeader(r)
			printReport(r)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "browse attempts and their diagnostics")
	return cmd
}

// historyStore opens the configured report store for the current directory.
func historyStore(ctx context.Context) (report.Store, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}
	if cfg.History.Backend == config.BackendNone {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "report history is disabled (history.backend = %q)", config.BackendNone)
	}
	return openStore(ctx, cfg)
}

func printReportHeader(r *report.Report) {
	fmt.Println(StyleTitle.Render("Session " + r.ID))
	printKeyValue("Project", r.Project)
	printKeyValue("Manifest", r.Manifest)
	printKeyValue("Started", r.StartedAt.Local().Format(time.DateTime))
	printKeyValue("Duration", r.Duration().Round(time.Millisecond).String())
	printKeyValue("Outcome", string(r.Outcome))
	if r.DryRun {
		printKeyValue("Mode", "dry run")
	}
}

// renderHistory draws the session list table.
func renderHistory(reports []*report.Report) string {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			shortID(r.ID),
			formatRelativeTime(r.StartedAt),
			truncate(r.Project, 40),
			string(r.Outcome),
			fmt.Sprintf("%d", len(r.Attempts)),
			r.Duration().Round(time.Second).String(),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("ID", "Started", "Project", "Outcome", "Attempts", "Took").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			if row == -1 {
				return styleHeader.Padding(0, 1)
			}
			if col != 3 || row < 0 || row >= len(reports) {
				return base
			}
			return base.Foreground(outcomeColor(reports[row].Outcome))
		}).
		Render()
}

func outcomeColor(o report.Outcome) lipgloss.Color {
	switch o {
	case report.Resolved:
		return colorGreen
	case report.Exhausted:
		return colorYellow
	default:
		return colorRed
	}
}
