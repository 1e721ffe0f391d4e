package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccdash/internal/cli"
	"github.com/theirongolddev/ccdash/internal/model"
	"github.com/theirongolddev/ccdash/internal/store"
)

var sessionCmd = &cobra.Command{
	Use:   "session <id>",
	Short: "Show one session in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runSession,
}

var sessionCalls int

func init() {
	sessionCmd.Flags().IntVar(&sessionCalls, "calls", 25, "Number of tool calls to list (0 for none)")
	rootCmd.AddCommand(sessionCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	a, err := openApp(newLogger(slog.LevelWarn))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	if err := a.refresh(ctx); err != nil {
		return err
	}

	rec, err := a.store.SessionDetail(ctx, args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("session %q is not in the cache", args[0])
	}
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(rec)
	}

	loc, _ := cfg.Location()

	fmt.Println()
	fmt.Println(cli.RenderTitle("SESSION  " + rec.SessionID))
	fmt.Println()
	fmt.Print(cli.RenderKV([][2]string{
		{"Project", rec.Project},
		{"Started", cli.FormatStart(rec.StartTime, loc)},
		{"Ended", cli.FormatStart(rec.EndTime, loc)},
		{"Model", orDash(rec.Model)},
		{"Turns", fmt.Sprintf("%d (%d interrupted)", rec.TurnCount, rec.InterruptCount)},
		{"Tools", fmt.Sprintf("%d direct, %d subagents", rec.TotalTools, len(rec.Subagents))},
		{"Active", fmt.Sprintf("%s (%s with subagents)", cli.FormatActive(rec.ActiveDurationMs), cli.FormatActive(rec.TotalActiveDurationMs))},
		{"Tokens", fmt.Sprintf("%s in / %s out / %s cache write / %s cache read",
			cli.FormatTokens(rec.Tokens.Input), cli.FormatTokens(rec.Tokens.Output),
			cli.FormatTokens(rec.Tokens.CacheCreation), cli.FormatTokens(rec.Tokens.CacheRead))},
		{"Cost (est)", cli.CostStyle.Render(cli.FormatCost(rec.CostEstimate))},
		{"First prompt", orDash(cli.Truncate(rec.FirstPrompt, 80))},
	}))
	fmt.Println()

	if len(rec.ToolCounts) > 0 {
		fmt.Print(cli.RenderRanking("Tools", countEntries(rec.ToolCounts), 30))
		fmt.Println()
	}

	if len(rec.BashCommands) > 0 {
		rows := make([][]string, 0, min(len(rec.BashCommands), 10))
		for _, bc := range rec.BashCommands[:min(len(rec.BashCommands), 10)] {
			rows = append(rows, []string{cli.Truncate(bc.Command, 50), bc.Category, cli.FormatNumber(int64(bc.Count))})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:     "Top commands",
			Headers:   []string{"Command", "Category", "Count"},
			Rows:      rows,
			LeftAlign: map[int]bool{1: true},
		}))
		fmt.Println()
	}

	if len(rec.Subagents) > 0 {
		rows := make([][]string, 0, len(rec.Subagents))
		for _, sa := range rec.Subagents {
			desc := sa.TaskDescription
			if desc == "" {
				desc = sa.Description
			}
			rows = append(rows, []string{
				cli.Truncate(sa.AgentID, 12),
				orDash(sa.SubagentType),
				cli.FormatNumber(int64(sa.ToolCount)),
				cli.FormatActive(sa.ActiveDurationMs),
				cli.Truncate(desc, 40),
			})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:     "Subagents",
			Headers:   []string{"Agent", "Type", "Tools", "Active", "Task"},
			Rows:      rows,
			LeftAlign: map[int]bool{1: true, 4: true},
		}))
		fmt.Println()
	}

	if sessionCalls > 0 && len(rec.ToolCalls) > 0 {
		calls := rec.ToolCalls[:min(len(rec.ToolCalls), sessionCalls)]
		rows := make([][]string, 0, len(calls))
		for _, c := range calls {
			tool := c.Tool
			if c.IsSubagent {
				tool += " (sub)"
			}
			rows = append(rows, []string{
				fmt.Sprintf("%d", c.Seq),
				tool,
				cli.Truncate(strings.ReplaceAll(c.Detail, "\n", " "), 60),
			})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:     fmt.Sprintf("Tool calls (%d of %d)", len(calls), len(rec.ToolCalls)),
			Headers:   []string{"#", "Tool", "Detail"},
			Rows:      rows,
			LeftAlign: map[int]bool{1: true, 2: true},
		}))
	}
	return nil
}

// countEntries ranks a count map by count descending, then key.
func countEntries(m map[string]int) []model.CountEntry {
	out := make([]model.CountEntry, 0, len(m))
	for k, v := range m {
		out = append(out, model.CountEntry{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
