package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPriceTable_Lookup(t *testing.T) {
	table := DefaultPricing().Table()

	tests := []struct {
		model      string
		wantInput  float64
		wantOutput float64
	}{
		{"claude-opus-4-6", 15, 75},
		{"claude-3-5-HAIKU-20241022", 0.80, 4},
		{"claude-sonnet-4-5-20250929", 3, 15},
		{"", 3, 15},
		{"some-future-model", 3, 15},
	}

	for _, tt := range tests {
		got := table.Lookup(tt.model)
		if got.InputPerMTok != tt.wantInput || got.OutputPerMTok != tt.wantOutput {
			t.Errorf("Lookup(%q) = %+v, want input %.2f output %.2f", tt.model, got, tt.wantInput, tt.wantOutput)
		}
	}
}

func TestPriceTable_EstimateCost(t *testing.T) {
	table := DefaultPricing().Table()

	// 1M input at $3 + 1M output at $15 + 1M cache write at 3*1.25 + 1M cache read at 3*0.1
	got := table.EstimateCost("claude-sonnet-4", 1_000_000, 1_000_000, 1_000_000, 1_000_000)
	want := 3 + 15 + 3.75 + 0.3
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("EstimateCost = %.6f, want %.6f", got, want)
	}

	// Rounded to 4 places.
	got = table.EstimateCost("claude-opus-4", 1, 0, 0, 0)
	if got != 0 {
		t.Errorf("EstimateCost(1 opus input token) = %v, want 0 after rounding", got)
	}
	got = table.EstimateCost("claude-opus-4", 100, 0, 0, 0)
	if got != 0.0015 {
		t.Errorf("EstimateCost(100 opus input tokens) = %v, want 0.0015", got)
	}
}

func TestPricingConfig_OverrideKeepsOtherTiers(t *testing.T) {
	p := PricingConfig{
		DefaultTier: "haiku",
		Tiers: map[string]Rates{
			"Opus": {InputPerMTok: 5, OutputPerMTok: 25},
		},
	}
	table := p.Table()

	if got := table.Lookup("claude-opus-4-6"); got.InputPerMTok != 5 {
		t.Errorf("opus override InputPerMTok = %.2f, want 5", got.InputPerMTok)
	}
	if got := table.Lookup("claude-sonnet-4"); got.InputPerMTok != 3 {
		t.Errorf("sonnet InputPerMTok = %.2f, want 3", got.InputPerMTok)
	}
	if got := table.Lookup("unknown"); got.InputPerMTok != 0.80 {
		t.Errorf("fallback InputPerMTok = %.2f, want 0.80 (haiku default tier)", got.InputPerMTok)
	}
}

func TestLoadFile_MissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Cache.MaxFileSizeMB != 100 {
		t.Errorf("MaxFileSizeMB = %d, want 100", cfg.Cache.MaxFileSizeMB)
	}
	if cfg.Freshness() != 5*time.Minute {
		t.Errorf("Freshness = %v, want 5m", cfg.Freshness())
	}
	if cfg.MaxFileSize() != 100*1024*1024 {
		t.Errorf("MaxFileSize = %d, want %d", cfg.MaxFileSize(), 100*1024*1024)
	}
}

func TestLoadFile_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[general]
timezone = "UTC"

[cache]
freshness_minutes = 1
preview_length = 40

[pricing.tiers.opus]
input_per_mtok = 5.0
output_per_mtok = 25.0
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Freshness() != time.Minute {
		t.Errorf("Freshness = %v, want 1m", cfg.Freshness())
	}
	if cfg.Cache.PreviewLength != 40 {
		t.Errorf("PreviewLength = %d, want 40", cfg.Cache.PreviewLength)
	}
	if cfg.Cache.MaxFileSizeMB != 100 {
		t.Errorf("MaxFileSizeMB = %d, want default 100", cfg.Cache.MaxFileSizeMB)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location = %v, %v; want UTC", loc, err)
	}
	if got := cfg.Pricing.Table().Lookup("claude-opus-4-6").OutputPerMTok; got != 25 {
		t.Errorf("opus OutputPerMTok = %.2f, want 25", got)
	}
}

func TestLoadFile_BadTimezone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[general]\ntimezone = \"Not/AZone\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestSaveFile_RoundTripsThroughLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := DefaultConfig()
	cfg.Daemon.Addr = "127.0.0.1:9999"

	if err := SaveFile(path, cfg); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got.Daemon.Addr != "127.0.0.1:9999" {
		t.Errorf("Daemon.Addr = %q, want 127.0.0.1:9999", got.Daemon.Addr)
	}
}
