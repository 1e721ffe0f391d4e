package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all ccdash configuration.
type Config struct {
	General GeneralConfig `toml:"general"`
	Cache   CacheConfig   `toml:"cache"`
	Daemon  DaemonConfig  `toml:"daemon"`
	Log     LogConfig     `toml:"log"`
	Pricing PricingConfig `toml:"pricing"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	ClaudeDir string `toml:"claude_dir,omitempty"`
	// Timezone is an IANA name or "Local". Day, week and month buckets use it.
	Timezone string `toml:"timezone"`
}

// CacheConfig controls parsing limits and rebuild freshness.
type CacheConfig struct {
	Path             string `toml:"path,omitempty"`
	MaxFileSizeMB    int    `toml:"max_file_size_mb"`
	FreshnessMinutes int    `toml:"freshness_minutes"`
	PreviewLength    int    `toml:"preview_length"`
	IncludePreviews  bool   `toml:"include_previews"`
}

// DaemonConfig controls the long-running read server.
type DaemonConfig struct {
	Addr         string `toml:"addr"`
	PollSeconds  int    `toml:"poll_seconds"`
	Watch        bool   `toml:"watch"`
	DebounceMs   int    `toml:"debounce_ms"`
	EventsBuffer int    `toml:"events_buffer"`
}

// LogConfig controls log output.
type LogConfig struct {
	Debug bool `toml:"debug"`
	JSON  bool `toml:"json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			Timezone: "Local",
		},
		Cache: CacheConfig{
			MaxFileSizeMB:    100,
			FreshnessMinutes: 5,
			PreviewLength:    150,
			IncludePreviews:  true,
		},
		Daemon: DaemonConfig{
			Addr:         "127.0.0.1:8788",
			PollSeconds:  60,
			Watch:        true,
			DebounceMs:   2000,
			EventsBuffer: 200,
		},
		Pricing: DefaultPricing(),
	}
}

// Dir returns the XDG-compliant config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ccdash")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ccdash")
}

// Path returns the full path to the config file.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "ccdash")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "ccdash")
}

// LoadFile reads the config at path. Missing keys keep their defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // user-chosen config path
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// SaveFile writes the config to path, creating its directory.
func SaveFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // user-chosen config path
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// ClaudeDir returns the configured Claude data directory, defaulting to ~/.claude.
func (c Config) ClaudeDir() string {
	if c.General.ClaudeDir != "" {
		return c.General.ClaudeDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude")
}

// CachePath returns the full path to the cache database.
func (c Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(CacheDir(), "activity.db")
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	switch c.General.Timezone {
	case "", "Local", "local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.General.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.General.Timezone, err)
	}
	return loc, nil
}

// Freshness is how old the last successful rebuild may get before a read
// triggers a new one.
func (c Config) Freshness() time.Duration {
	if c.Cache.FreshnessMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Cache.FreshnessMinutes) * time.Minute
}

// MaxFileSize returns the per-file parse limit in bytes.
func (c Config) MaxFileSize() int64 {
	if c.Cache.MaxFileSizeMB <= 0 {
		return 100 << 20
	}
	return int64(c.Cache.MaxFileSizeMB) << 20
}

// PollInterval returns the daemon's staleness check interval.
func (c Config) PollInterval() time.Duration {
	if c.Daemon.PollSeconds < 2 {
		return 60 * time.Second
	}
	return time.Duration(c.Daemon.PollSeconds) * time.Second
}

// Debounce returns the watcher's quiet period before triggering a rebuild.
func (c Config) Debounce() time.Duration {
	if c.Daemon.DebounceMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Daemon.DebounceMs) * time.Millisecond
}
