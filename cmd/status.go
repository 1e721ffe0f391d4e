package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccdash/internal/cli"
	"github.com/theirongolddev/ccdash/internal/source"
	"github.com/theirongolddev/ccdash/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache location, size and freshness",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type cacheStatus struct {
	CachePath    string `json:"cache_path"`
	CacheBytes   int64  `json:"cache_bytes"`
	ClaudeDir    string `json:"claude_dir"`
	FilesOnDisk  int    `json:"files_on_disk"`
	Projects     int    `json:"projects_on_disk"`
	TrackedFiles int    `json:"tracked_files"`
	Sessions     int    `json:"sessions"`
	Built        bool   `json:"aggregate_built"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := openApp(newLogger(slog.LevelWarn))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	ctx := cmd.Context()

	files, err := source.ScanDir(cfg.ClaudeDir())
	if err != nil {
		return err
	}
	st := cacheStatus{
		CachePath:   cfg.CachePath(),
		ClaudeDir:   cfg.ClaudeDir(),
		FilesOnDisk: len(files),
		Projects:    source.CountProjects(files),
	}
	for _, suffix := range []string{"", "-wal"} {
		if info, err := os.Stat(st.CachePath + suffix); err == nil {
			st.CacheBytes += info.Size()
		}
	}

	tracked, err := a.store.TrackedFiles(ctx)
	if err != nil {
		return err
	}
	st.TrackedFiles = len(tracked)

	if st.Sessions, err = a.store.SessionCount(ctx); err != nil {
		return err
	}

	agg, err := a.store.Aggregate(ctx)
	switch {
	case errors.Is(err, store.ErrNotBuilt):
	case err != nil:
		return err
	default:
		st.Built = true
	}

	if flagJSON {
		return printJSON(st)
	}

	generated := "not built"
	if st.Built {
		generated = cli.FormatAgo(agg.GeneratedAt)
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("CACHE STATUS"))
	fmt.Println()
	fmt.Print(cli.RenderKV([][2]string{
		{"Cache", st.CachePath},
		{"Size", cli.FormatBytes(st.CacheBytes)},
		{"Claude dir", st.ClaudeDir},
		{"Session logs", fmt.Sprintf("%s in %s projects", cli.FormatNumber(int64(st.FilesOnDisk)), cli.FormatNumber(int64(st.Projects)))},
		{"Tracked files", cli.FormatNumber(int64(st.TrackedFiles))},
		{"Sessions", cli.FormatNumber(int64(st.Sessions))},
		{"Overview", generated},
	}))
	return nil
}
