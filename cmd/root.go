// Package cmd implements the ccdash CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccdash/internal/config"
	"github.com/theirongolddev/ccdash/internal/extract"
	"github.com/theirongolddev/ccdash/internal/logger"
	"github.com/theirongolddev/ccdash/internal/pipeline"
	"github.com/theirongolddev/ccdash/internal/source"
	"github.com/theirongolddev/ccdash/internal/store"
)

var (
	flagConfig    string
	flagClaudeDir string
	flagCachePath string
	flagTimezone  string
	flagDebug     bool
	flagJSONLog   bool
	flagJSON      bool
	flagNoRefresh bool
)

// cfg is the loaded configuration with flag overrides applied.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "ccdash",
	Short:         "Claude Code activity cache",
	Long:          "Index Claude Code session logs into a local SQLite cache and report on tool activity.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", config.Path(), "Config file path")
	pf.StringVarP(&flagClaudeDir, "claude-dir", "d", "", "Claude data directory (default ~/.claude)")
	pf.StringVar(&flagCachePath, "cache", "", "Cache database path")
	pf.StringVar(&flagTimezone, "tz", "", "Timezone for calendar buckets (IANA name or Local)")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.BoolVar(&flagJSONLog, "log-json", false, "Write logs as JSON")
	pf.BoolVar(&flagJSON, "json", false, "Print results as JSON")
	pf.BoolVar(&flagNoRefresh, "no-refresh", false, "Read the cache without an incremental rebuild first")
}

func loadConfig(cmd *cobra.Command) error {
	loaded, err := config.LoadFile(flagConfig)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("claude-dir") {
		loaded.General.ClaudeDir = flagClaudeDir
	}
	if flags.Changed("cache") {
		loaded.Cache.Path = flagCachePath
	}
	if flags.Changed("tz") {
		loaded.General.Timezone = flagTimezone
	}
	if flags.Changed("debug") {
		loaded.Log.Debug = flagDebug
	}
	if flags.Changed("log-json") {
		loaded.Log.JSON = flagJSONLog
	}
	if _, err := loaded.Location(); err != nil {
		return err
	}

	cfg = loaded
	return nil
}

// newLogger builds the stderr logger. Read commands pass slog.LevelWarn so
// rebuild progress stays out of their output; --debug always wins.
func newLogger(level slog.Level) *slog.Logger {
	if cfg.Log.Debug {
		level = slog.LevelDebug
	}
	return logger.New(
		logger.WithLevel(level),
		logger.WithJSON(cfg.Log.JSON),
		logger.WithPretty(!cfg.Log.JSON),
	)
}

// app bundles the components shared by the commands that touch the cache.
type app struct {
	log       *slog.Logger
	store     *store.Store
	rebuilder *pipeline.Rebuilder
}

func openApp(log *slog.Logger) (*app, error) {
	st, err := store.Open(cfg.CachePath())
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	asm := source.NewAssembler(source.Options{
		MaxFileSize: cfg.MaxFileSize(),
		Prices:      cfg.Pricing.Table(),
		Extract: extract.Options{
			IncludePreviews: cfg.Cache.IncludePreviews,
			PreviewLength:   cfg.Cache.PreviewLength,
		},
	})
	rb := pipeline.NewRebuilder(st, asm, cfg.ClaudeDir(),
		pipeline.WithLocation(loc),
		pipeline.WithLogger(log),
	)
	return &app{log: log, store: st, rebuilder: rb}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// refresh brings the cache up to date before a read unless --no-refresh is set.
func (a *app) refresh(ctx context.Context) error {
	if flagNoRefresh {
		return nil
	}
	_, err := a.rebuilder.Rebuild(ctx)
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
