package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/ccdash/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var (
	configForce bool
	configTOML  bool
)

func init() {
	configCmd.Flags().BoolVar(&configTOML, "toml", false, "Print the effective configuration as TOML")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	switch {
	case flagJSON:
		return printJSON(cfg)
	case configTOML:
		return printTOML(cfg)
	}

	fmt.Printf("  Config file: %s\n", flagConfig)
	if _, err := os.Stat(flagConfig); err == nil {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Claude directory:  %s\n", cfg.ClaudeDir())
	fmt.Printf("    Timezone:          %s\n", cfg.General.Timezone)
	fmt.Println()

	fmt.Println("  [Cache]")
	fmt.Printf("    Path:              %s\n", cfg.CachePath())
	fmt.Printf("    Max file size:     %d MB\n", cfg.MaxFileSize()>>20)
	fmt.Printf("    Freshness:         %s\n", cfg.Freshness())
	fmt.Printf("    Preview length:    %d\n", cfg.Cache.PreviewLength)
	fmt.Printf("    Include previews:  %v\n", cfg.Cache.IncludePreviews)
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Address:           %s\n", cfg.Daemon.Addr)
	fmt.Printf("    Poll interval:     %s\n", cfg.PollInterval())
	fmt.Printf("    Watch:             %v (debounce %s)\n", cfg.Daemon.Watch, cfg.Debounce())
	fmt.Println()

	fmt.Println("  [Pricing]  per million tokens")
	names := make([]string, 0, len(cfg.Pricing.Tiers))
	for name := range cfg.Pricing.Tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := cfg.Pricing.Tiers[name]
		marker := ""
		if name == cfg.Pricing.DefaultTier {
			marker = "  (default)"
		}
		fmt.Printf("    %-8s in $%.2f  out $%.2f%s\n", name, r.InputPerMTok, r.OutputPerMTok, marker)
	}
	fmt.Println()

	fmt.Println("  Run `ccdash config init` to write these defaults to disk.")
	return nil
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	if _, err := os.Stat(flagConfig); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", flagConfig)
	}
	if err := config.SaveFile(flagConfig, config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Printf("  Wrote %s\n", flagConfig)
	return nil
}

func printTOML(c config.Config) error {
	return toml.NewEncoder(os.Stdout).Encode(c)
}
