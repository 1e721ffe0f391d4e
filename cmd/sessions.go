package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccdash/internal/cli"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List cached sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var (
	sessionsLimit   int
	sessionsProject string
)

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "l", 20, "Number of sessions to show (0 for all)")
	sessionsCmd.Flags().StringVarP(&sessionsProject, "project", "p", "", "Only sessions of this project (exact name)")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, _ []string) error {
	a, err := openApp(newLogger(slog.LevelWarn))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	if err := a.refresh(ctx); err != nil {
		return err
	}

	sessions, err := a.store.Summaries(ctx, sessionsProject)
	if err != nil {
		return err
	}
	if sessionsLimit > 0 && len(sessions) > sessionsLimit {
		sessions = sessions[:sessionsLimit]
	}
	if flagJSON {
		return printJSON(sessions)
	}
	if len(sessions) == 0 {
		fmt.Println("\n  No sessions found.")
		return nil
	}

	loc, _ := cfg.Location()

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("SESSIONS  (showing %d)", len(sessions))))
	fmt.Println()

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			cli.FormatStart(s.StartTime, loc),
			cli.Truncate(s.Project, 16),
			cli.Truncate(s.SessionID, 12),
			cli.FormatNumber(int64(s.TurnCount)),
			cli.FormatNumber(int64(s.TotalActions)),
			cli.FormatActive(s.TotalActiveDurationMs),
			cli.FormatTokens(s.Tokens.Total()),
			cli.FormatCost(s.CostEstimate),
			cli.Truncate(s.PromptPreview, 40),
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers:   []string{"Start", "Project", "Session", "Turns", "Actions", "Active", "Tokens", "Cost", "Prompt"},
		Rows:      rows,
		LeftAlign: map[int]bool{1: true, 2: true, 8: true},
	}))
	return nil
}
