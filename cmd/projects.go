package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccdash/internal/cli"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List cached projects with session counts",
	Args:  cobra.NoArgs,
	RunE:  runProjects,
}

func init() {
	rootCmd.AddCommand(projectsCmd)
}

func runProjects(cmd *cobra.Command, _ []string) error {
	a, err := openApp(newLogger(slog.LevelWarn))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	if err := a.refresh(ctx); err != nil {
		return err
	}

	projects, err := a.store.Projects(ctx)
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(projects)
	}
	if len(projects) == 0 {
		fmt.Println("\n  No projects found.")
		return nil
	}

	summaries, err := a.store.Summaries(ctx, "")
	if err != nil {
		return err
	}
	type row struct {
		sessions, actions int
		cost              float64
	}
	byProject := make(map[string]*row, len(projects))
	for _, s := range summaries {
		r := byProject[s.Project]
		if r == nil {
			r = &row{}
			byProject[s.Project] = r
		}
		r.sessions++
		r.actions += s.TotalActions
		r.cost += s.CostEstimate
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("PROJECTS  (%d)", len(projects))))
	fmt.Println()

	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		r := byProject[p]
		if r == nil {
			r = &row{}
		}
		rows = append(rows, []string{
			cli.Truncate(p, 24),
			cli.FormatNumber(int64(r.sessions)),
			cli.FormatNumber(int64(r.actions)),
			cli.FormatCost(r.cost),
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Project", "Sessions", "Actions", "Cost"},
		Rows:    rows,
	}))
	return nil
}
