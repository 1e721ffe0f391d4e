package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccdash/internal/cli"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Bring the cache up to date with the session logs",
	Long:  "Re-parse every new or changed session log, drop deleted ones and recompute the overview.",
	Args:  cobra.NoArgs,
	RunE:  runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, _ []string) error {
	a, err := openApp(newLogger(slog.LevelInfo))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := a.rebuilder.Rebuild(cmd.Context())
	if err != nil {
		return err
	}
	if flagJSON {
		return printJSON(stats)
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("REBUILD"))
	fmt.Println()
	fmt.Print(cli.RenderKV([][2]string{
		{"Scanned", cli.FormatNumber(int64(stats.FilesScanned))},
		{"Stale", cli.FormatNumber(int64(stats.Stale))},
		{"Parsed", cli.FormatNumber(int64(stats.Parsed))},
		{"Empty", cli.FormatNumber(int64(stats.Empty))},
		{"Errors", cli.FormatNumber(int64(stats.Errors))},
		{"Removed", cli.FormatNumber(int64(stats.Removed))},
		{"Malformed lines", cli.FormatNumber(int64(stats.Malformed))},
		{"Sessions cached", cli.FormatNumber(int64(stats.TotalCached))},
		{"Took", stats.Duration.Round(time.Millisecond).String()},
	}))
	if stats.Errors > 0 {
		fmt.Println()
		fmt.Println("  " + cli.WarnStyle.Render("Some files could not be parsed; run with --debug for details."))
	}
	return nil
}
