package config

import (
	"math"
	"sort"
	"strings"
)

// Rates holds per-million-token prices for one pricing tier.
type Rates struct {
	InputPerMTok  float64 `toml:"input_per_mtok"`
	OutputPerMTok float64 `toml:"output_per_mtok"`
}

// PricingConfig maps model-name substrings to rates. A model matches the
// first tier (by descending name length, then name) whose key appears in
// its lowercased identifier; unmatched models use DefaultTier.
type PricingConfig struct {
	DefaultTier          string           `toml:"default_tier"`
	CacheWriteMultiplier float64          `toml:"cache_write_multiplier"`
	CacheReadMultiplier  float64          `toml:"cache_read_multiplier"`
	Tiers                map[string]Rates `toml:"tiers"`
}

// DefaultPricing returns the built-in opus/sonnet/haiku tiers.
func DefaultPricing() PricingConfig {
	return PricingConfig{
		DefaultTier:          "sonnet",
		CacheWriteMultiplier: 1.25,
		CacheReadMultiplier:  0.10,
		Tiers: map[string]Rates{
			"opus":   {InputPerMTok: 15.00, OutputPerMTok: 75.00},
			"sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
			"haiku":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
		},
	}
}

// PriceTable is an immutable, ordered view of a PricingConfig.
type PriceTable struct {
	names      []string
	tiers      map[string]Rates
	fallback   Rates
	cacheWrite float64
	cacheRead  float64
}

// Table builds the lookup table. Tiers missing from the config are filled
// from the defaults so an override of one tier keeps the others.
func (p PricingConfig) Table() PriceTable {
	def := DefaultPricing()

	tiers := make(map[string]Rates, len(def.Tiers)+len(p.Tiers))
	for name, r := range def.Tiers {
		tiers[name] = r
	}
	for name, r := range p.Tiers {
		tiers[strings.ToLower(name)] = r
	}

	names := make([]string, 0, len(tiers))
	for name := range tiers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	defaultTier := strings.ToLower(p.DefaultTier)
	if defaultTier == "" {
		defaultTier = def.DefaultTier
	}
	fallback, ok := tiers[defaultTier]
	if !ok {
		fallback = def.Tiers[def.DefaultTier]
	}

	cw, cr := p.CacheWriteMultiplier, p.CacheReadMultiplier
	if cw <= 0 {
		cw = def.CacheWriteMultiplier
	}
	if cr <= 0 {
		cr = def.CacheReadMultiplier
	}

	return PriceTable{names: names, tiers: tiers, fallback: fallback, cacheWrite: cw, cacheRead: cr}
}

// IsZero reports whether t was never built by Table.
func (t PriceTable) IsZero() bool {
	return t.tiers == nil
}

// Lookup returns the rates for a raw model identifier.
func (t PriceTable) Lookup(model string) Rates {
	m := strings.ToLower(model)
	for _, name := range t.names {
		if strings.Contains(m, name) {
			return t.tiers[name]
		}
	}
	return t.fallback
}

// EstimateCost returns the USD cost of a session's tokens, rounded to 4 places.
// Cache writes bill at the write multiplier of the input rate and cache reads
// at the read multiplier.
func (t PriceTable) EstimateCost(model string, input, output, cacheCreation, cacheRead int64) float64 {
	r := t.Lookup(model)
	cost := float64(input)*r.InputPerMTok +
		float64(output)*r.OutputPerMTok +
		float64(cacheCreation)*r.InputPerMTok*t.cacheWrite +
		float64(cacheRead)*r.InputPerMTok*t.cacheRead
	return Round4(cost / 1_000_000)
}

// Round4 rounds a dollar amount to four decimal places.
func Round4(v float64) float64 {
	return math.Round(v*10_000) / 10_000
}
