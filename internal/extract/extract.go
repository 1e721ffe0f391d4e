// Package extract turns tool_use blocks into typed invocation records.
//
// Each tool kind has an Extractor; a Registry maps kind names to
// extractors and falls back to Generic for anything it does not know.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/theirongolddev/ccdash/internal/model"
)

// Block is one tool_use content block.
type Block struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Meta is the per-record context shared by every block on one log line.
type Meta struct {
	Timestamp  time.Time
	SessionID  string
	Project    string
	SourcePath string
	Line       int
	Cwd        string
	GitBranch  string
}

// Options control preview capture.
type Options struct {
	IncludePreviews bool
	PreviewLength   int
}

// DefaultOptions matches the dashboard defaults.
func DefaultOptions() Options {
	return Options{IncludePreviews: true, PreviewLength: 150}
}

// Extractor produces an invocation for one tool kind.
type Extractor interface {
	Extract(b Block, meta Meta, opts Options) (model.Invocation, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(b Block, meta Meta, opts Options) (model.Invocation, error)

// Extract calls f.
func (f ExtractorFunc) Extract(b Block, meta Meta, opts Options) (model.Invocation, error) {
	return f(b, meta, opts)
}

func base(b Block, meta Meta) model.Invocation {
	return model.Invocation{
		Tool:       b.Name,
		ToolUseID:  b.ID,
		Timestamp:  meta.Timestamp,
		SessionID:  meta.SessionID,
		Project:    meta.Project,
		SourcePath: meta.SourcePath,
		Line:       meta.Line,
		Cwd:        meta.Cwd,
		GitBranch:  meta.GitBranch,
	}
}

// input is a decoded tool input. Values are read leniently: a field of the
// wrong JSON type reads as its zero value instead of failing the block.
type input map[string]any

func decodeInput(raw json.RawMessage) (input, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return input{}, nil
	}
	var in input
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decoding tool input: %w", err)
	}
	return in, nil
}

func (in input) str(key string) string {
	s, _ := in[key].(string)
	return s
}

func (in input) strOr(key, def string) string {
	if s, ok := in[key].(string); ok {
		return s
	}
	return def
}

func (in input) num(key string) int64 {
	switch v := in[key].(type) {
	case float64:
		return int64(v)
	case string:
		var n int64
		if _, err := fmt.Sscan(v, &n); err == nil {
			return n
		}
	}
	return 0
}

func (in input) flag(key string) bool {
	switch v := in[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	}
	return false
}

// text renders a scalar input value the way it was written, for flag strings.
func (in input) text(key string) string {
	switch v := in[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "true"
		}
	}
	return ""
}

// Truncate trims s and cuts it to n runes, appending "..." when it was longer.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func preview(s string, opts Options) string {
	if !opts.IncludePreviews || s == "" {
		return ""
	}
	return Truncate(s, opts.PreviewLength)
}
