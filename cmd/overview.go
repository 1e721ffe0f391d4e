package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccdash/internal/cli"
	"github.com/theirongolddev/ccdash/internal/model"
	"github.com/theirongolddev/ccdash/internal/store"
)

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Activity overview across all sessions",
	Args:  cobra.NoArgs,
	RunE:  runOverview,
}

var overviewWindow string

func init() {
	overviewCmd.Flags().StringVarP(&overviewWindow, "window", "w", "all", "Ranking window: all, 1d, 7d or 30d")
	rootCmd.AddCommand(overviewCmd)
}

func runOverview(cmd *cobra.Command, _ []string) error {
	pickCounts, pickCosts, err := windowPickers(overviewWindow)
	if err != nil {
		return err
	}

	a, err := openApp(newLogger(slog.LevelWarn))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	if err := a.refresh(ctx); err != nil {
		return err
	}

	agg, err := a.store.Aggregate(ctx)
	if errors.Is(err, store.ErrNotBuilt) {
		fmt.Println("\n  No sessions cached yet. Run `ccdash rebuild` after using Claude Code.")
		return nil
	}
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(agg)
	}

	loc, _ := cfg.Location()

	fmt.Println()
	fmt.Println(cli.RenderTitle("CLAUDE CODE ACTIVITY"))
	fmt.Println()
	fmt.Print(cli.RenderKV([][2]string{
		{"Sessions", cli.FormatNumber(int64(agg.TotalSessions))},
		{"Projects", cli.FormatNumber(int64(agg.ProjectCount))},
		{"Tool calls", fmt.Sprintf("%s direct, %s via %s subagents",
			cli.FormatNumber(int64(agg.TotalTools)),
			cli.FormatNumber(int64(agg.SubagentTools)),
			cli.FormatNumber(int64(agg.SubagentCount)))},
		{"Active time", cli.FormatActive(agg.TotalActiveMs)},
		{"Tokens", cli.FormatTokens(agg.Tokens.Total())},
		{"Cost (est)", cli.CostStyle.Render(cli.FormatCost(agg.TotalCost))},
		{"First session", cli.FormatStart(agg.FirstSessionTime, loc)},
		{"Last session", cli.FormatStart(agg.LastSessionTime, loc)},
		{"Generated", cli.FormatAgo(agg.GeneratedAt)},
	}))
	fmt.Println()

	if len(agg.Daily) > 0 {
		daily := agg.Daily[max(0, len(agg.Daily)-30):]
		values := make([]float64, len(daily))
		for i, p := range daily {
			values[i] = float64(p.DirectActions + p.SubagentActions)
		}
		fmt.Printf("  Actions per day  %s  %s .. %s\n\n", cli.RenderSparkline(values), daily[0].Key, daily[len(daily)-1].Key)
	}

	label := " (" + overviewWindow + ")"
	for _, section := range []struct {
		title   string
		entries []model.CountEntry
	}{
		{"Tools" + label, pickCounts(agg.Tools)},
		{"Projects" + label, pickCounts(agg.ProjectsRank)},
		{"File types" + label, pickCounts(agg.FileTypes)},
	} {
		if out := cli.RenderRanking(section.title, section.entries, 30); out != "" {
			fmt.Print(out)
			fmt.Println()
		}
	}

	if costs := pickCosts(agg.ProjectCosts); len(costs) > 0 {
		rows := make([][]string, 0, len(costs))
		for _, c := range costs {
			rows = append(rows, []string{cli.Truncate(c.Key, 24), cli.FormatCost(c.Cost)})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Project cost" + label,
			Headers: []string{"Project", "Cost"},
			Rows:    rows,
		}))
	}
	return nil
}

func windowPickers(window string) (func(model.CountWindows) []model.CountEntry, func(model.CostWindows) []model.CostEntry, error) {
	switch window {
	case "all", "":
		return func(w model.CountWindows) []model.CountEntry { return w.All },
			func(w model.CostWindows) []model.CostEntry { return w.All }, nil
	case "1d":
		return func(w model.CountWindows) []model.CountEntry { return w.Last1d },
			func(w model.CostWindows) []model.CostEntry { return w.Last1d }, nil
	case "7d":
		return func(w model.CountWindows) []model.CountEntry { return w.Last7d },
			func(w model.CostWindows) []model.CostEntry { return w.Last7d }, nil
	case "30d":
		return func(w model.CountWindows) []model.CountEntry { return w.Last30d },
			func(w model.CostWindows) []model.CostEntry { return w.Last30d }, nil
	default:
		return nil, nil, fmt.Errorf("unknown window %q (want all, 1d, 7d or 30d)", window)
	}
}
