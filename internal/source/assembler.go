// Package source discovers and parses Claude Code JSONL session files.
package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/theirongolddev/ccdash/internal/config"
	"github.com/theirongolddev/ccdash/internal/extract"
	"github.com/theirongolddev/ccdash/internal/model"
)

// DefaultMaxFileSize is the parse limit applied when Options leaves it unset.
const DefaultMaxFileSize int64 = 100 << 20

// ErrFileTooLarge is returned for session files above the size limit.
var ErrFileTooLarge = errors.New("file exceeds size limit")

const (
	maxTurnText      = 300
	maxPromptPreview = 80
	maxSubagentDesc  = 200
	maxBashCommand   = 200
	topBashCommands  = 50
)

var interruptSentinels = map[string]bool{
	"[Request interrupted by user]":              true,
	"[Request interrupted by user for tool use]": true,
}

// leadingTags matches a run of paired markup tags at the start of a message,
// e.g. injected <system-reminder>...</system-reminder> blocks.
var leadingTags = regexp.MustCompile(`^(<[^>]+>[\s\S]*?</[^>]+>\s*)+`)

// Options configure an Assembler.
type Options struct {
	MaxFileSize int64
	Extract     extract.Options
	Prices      config.PriceTable
	Registry    *extract.Registry
}

// ParseResult holds the output of assembling a single session file.
// Record is nil when the file held nothing worth keeping.
type ParseResult struct {
	Record         *model.SessionRecord
	MalformedLines int
	SkippedBlocks  int
}

// SpawnInfo is what a parent session declared when it spawned a subagent.
type SpawnInfo struct {
	SubagentType string `json:"subagent_type"`
	Description  string `json:"description"`
}

// Assembler rebuilds SessionRecords from log files. It holds no per-file
// state and is safe for concurrent use.
type Assembler struct {
	opts Options
}

// NewAssembler fills unset options with defaults.
func NewAssembler(opts Options) *Assembler {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Registry == nil {
		opts.Registry = extract.NewRegistry()
	}
	if opts.Prices.IsZero() {
		opts.Prices = config.DefaultPricing().Table()
	}
	if opts.Extract.PreviewLength <= 0 {
		opts.Extract = extract.DefaultOptions()
	}
	return &Assembler{opts: opts}
}

// sessionState accumulates everything collected during the single pass.
type sessionState struct {
	path    string
	project string

	slug             string
	minTime, maxTime time.Time
	activeMs         int64
	permissionMode   string
	thinkingLevel    string

	model  string
	models map[string]struct{}

	// usage keeps the last entry per message id. Summing every entry
	// instead counts a streamed message once per content block, so totals
	// here are lower than a plain per-line sum over the same log.
	usage map[string]model.TokenCounts
	anon  model.TokenCounts // usage on entries without a message id

	firstPrompt string
	turnNumber  int
	turns       []model.Turn

	invocations []model.Invocation
	toolErrors  int
	toolOK      int

	spawns         map[string]SpawnInfo // tool_use id -> declared role
	agentByToolUse map[string]string    // tool_use id -> agent id

	malformed int
	skipped   int
}

// Assemble parses one session file in a single pass.
func (a *Assembler) Assemble(path, project string) (ParseResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ParseResult{}, err
	}
	if info.Size() > a.opts.MaxFileSize {
		return ParseResult{}, fmt.Errorf("%s (%d bytes): %w", path, info.Size(), ErrFileTooLarge)
	}

	st := &sessionState{
		path:           path,
		project:        project,
		models:         make(map[string]struct{}),
		usage:          make(map[string]model.TokenCounts),
		spawns:         make(map[string]SpawnInfo),
		agentByToolUse: make(map[string]string),
	}

	for line, err := range NewRecordStream(path).Lines() {
		if err != nil {
			return ParseResult{}, err
		}
		if line.Malformed {
			st.malformed++
			continue
		}
		a.process(st, line.Number, line.Record)
	}

	return ParseResult{
		Record:         a.build(st),
		MalformedLines: st.malformed,
		SkippedBlocks:  st.skipped,
	}, nil
}

func (a *Assembler) process(st *sessionState, lineNo int, rec *RawRecord) {
	if st.slug == "" && rec.Slug != "" {
		st.slug = rec.Slug
	}

	ts, hasTS := parseTimestamp(rec.Timestamp)
	if hasTS {
		updateTimeRange(&st.minTime, &st.maxTime, ts)
	}

	if rec.Type == "system" && rec.Subtype == "turn_duration" {
		st.activeMs += int64(rec.DurationMs)
	}
	if rec.PermissionMode != "" {
		st.permissionMode = rec.PermissionMode
	}
	if len(rec.ThinkingMetadata) > 0 {
		var tm thinkingMetadata
		if json.Unmarshal(rec.ThinkingMetadata, &tm) == nil && tm.Level != nil {
			st.thinkingLevel = *tm.Level
		}
	}

	if rec.Type == "progress" && rec.ParentToolUseID != "" && len(rec.Data) > 0 {
		var pd progressData
		if json.Unmarshal(rec.Data, &pd) == nil && pd.AgentID != "" {
			if _, seen := st.agentByToolUse[rec.ParentToolUseID]; !seen {
				st.agentByToolUse[rec.ParentToolUseID] = pd.AgentID
			}
		}
	}

	msg := rec.Message
	if msg == nil {
		return
	}

	if msg.Model != "" {
		st.models[msg.Model] = struct{}{}
		if st.model == "" {
			st.model = msg.Model
		}
	}

	if u := msg.Usage; u != nil {
		tc := model.TokenCounts{
			Input:         u.InputTokens,
			Output:        u.OutputTokens,
			CacheCreation: u.CacheCreationInputTokens,
			CacheRead:     u.CacheReadInputTokens,
		}
		// Streaming writes one entry per content block under the same
		// message id; the last one carries the final billed usage.
		if msg.ID != "" {
			st.usage[msg.ID] = tc
		} else {
			st.anon.Add(tc)
		}
	}

	if msg.Role == "user" {
		st.addTurn(msg.Content, ts)
	}

	if msg.Content.IsList {
		meta := extract.Meta{
			Timestamp:  ts,
			SessionID:  rec.SessionID,
			Project:    st.project,
			SourcePath: st.path,
			Line:       lineNo,
			Cwd:        rec.Cwd,
			GitBranch:  rec.GitBranch,
		}
		for _, b := range msg.Content.Blocks {
			switch b.Type {
			case "tool_use":
				if b.Name == "" {
					continue
				}
				if extract.IsSpawn(b.Name) {
					st.spawns[b.ID] = decodeSpawn(b.Input)
				}
				inv, err := a.opts.Registry.Extract(extract.Block{ID: b.ID, Name: b.Name, Input: b.Input}, meta, a.opts.Extract)
				if err != nil {
					st.skipped++
					continue
				}
				st.invocations = append(st.invocations, inv)
			case "tool_result":
				if b.IsError {
					st.toolErrors++
				} else {
					st.toolOK++
				}
			}
		}
	}
}

func (st *sessionState) addTurn(content RawContent, ts time.Time) {
	text, ok := content.TextOf()
	if !ok {
		return
	}
	stripped := strings.TrimSpace(text)
	if isSystemText(stripped) || utf8.RuneCountInString(stripped) < 3 {
		return
	}

	st.turnNumber++
	interrupt := interruptSentinels[stripped]

	var cleaned string
	if !interrupt {
		cleaned = stripLeadingTags(stripped)
	}

	if st.firstPrompt == "" && !interrupt {
		switch {
		case utf8.RuneCountInString(cleaned) > 3:
			st.firstPrompt = cleaned
		case utf8.RuneCountInString(stripped) > 3:
			st.firstPrompt = stripped
		}
	}

	display := stripped
	if !interrupt && utf8.RuneCountInString(cleaned) > 3 {
		display = cleaned
	}

	st.turns = append(st.turns, model.Turn{
		Number:      st.turnNumber,
		Text:        ellipsize(display, maxTurnText),
		Timestamp:   ts,
		IsInterrupt: interrupt,
	})
}

func (a *Assembler) build(st *sessionState) *model.SessionRecord {
	interrupts := 0
	for _, t := range st.turns {
		if t.IsInterrupt {
			interrupts++
		}
	}

	if len(st.invocations) == 0 && st.firstPrompt == "" {
		return nil
	}

	rec := &model.SessionRecord{
		SessionID:        strings.TrimSuffix(filepath.Base(st.path), filepath.Ext(st.path)),
		Slug:             st.slug,
		Project:          st.project,
		FilePath:         st.path,
		FirstPrompt:      st.firstPrompt,
		PromptPreview:    ellipsize(st.firstPrompt, maxPromptPreview),
		TurnCount:        st.turnNumber,
		StartTime:        st.minTime,
		EndTime:          st.maxTime,
		Model:            st.model,
		ModelsUsed:       sortedKeys(st.models),
		TotalTools:       len(st.invocations),
		ToolCounts:       toolCounts(st.invocations),
		Invocations:      st.invocations,
		ToolCalls:        toolCalls(st.invocations, false),
		UserTurns:        st.turns,
		InterruptCount:   interrupts,
		ActiveDurationMs: st.activeMs,
		PermissionMode:   st.permissionMode,
		ThinkingLevel:    st.thinkingLevel,
		ToolErrors:       st.toolErrors,
		ToolSuccesses:    st.toolOK,
	}
	if rec.UserTurns == nil {
		rec.UserTurns = []model.Turn{}
	}

	rec.FileExtensions, rec.FilesTouched = fileStats(st.invocations)
	rec.BashCommands, rec.BashCategorySummary = bashStats(st.invocations)

	for _, tc := range st.usage {
		rec.Tokens.Add(tc)
	}
	rec.Tokens.Add(st.anon)

	info := make(map[string]SpawnInfo, len(st.spawns))
	for toolUseID, spawn := range st.spawns {
		if agentID, ok := st.agentByToolUse[toolUseID]; ok {
			info[agentID] = spawn
		}
	}
	rec.Subagents = a.ResolveSubagents(st.path, st.project, info)

	rec.TotalActiveDurationMs = st.activeMs
	for _, sa := range rec.Subagents {
		rec.TotalActiveDurationMs += sa.ActiveDurationMs
	}

	rec.CostEstimate = a.opts.Prices.EstimateCost(st.model,
		rec.Tokens.Input, rec.Tokens.Output, rec.Tokens.CacheCreation, rec.Tokens.CacheRead)

	return rec
}

func toolCounts(invs []model.Invocation) map[string]int {
	counts := make(map[string]int)
	for _, inv := range invs {
		counts[inv.Tool]++
	}
	return counts
}

func toolCalls(invs []model.Invocation, subagent bool) []model.ToolCall {
	calls := make([]model.ToolCall, len(invs))
	for i, inv := range invs {
		calls[i] = model.ToolCall{
			Seq:        i + 1,
			Time:       inv.Timestamp,
			Tool:       inv.Tool,
			Detail:     extract.Detail(inv),
			IsSubagent: subagent,
		}
	}
	return calls
}

func fileStats(invs []model.Invocation) (map[string]int, map[string]map[string]int) {
	exts := make(map[string]int)
	touched := make(map[string]map[string]int)
	for _, inv := range invs {
		path, ok := inv.FilePath()
		if !ok {
			continue
		}
		ext := fileSuffix(path)
		if ext == "" {
			ext = "(no ext)"
		}
		exts[ext]++
		if touched[path] == nil {
			touched[path] = make(map[string]int)
		}
		touched[path][inv.Tool]++
	}
	return exts, touched
}

// fileSuffix returns the final ".ext" of a path's base name. Dotfiles such
// as ".bashrc" and names ending in "." have no suffix.
func fileSuffix(path string) string {
	name := filepath.Base(path)
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return name[i:]
}

func bashStats(invs []model.Invocation) ([]model.BashCommand, map[string]int) {
	counts := make(map[string]int)
	var order []string
	for _, inv := range invs {
		if inv.Bash == nil {
			continue
		}
		cmd := strings.TrimSpace(inv.Bash.Command)
		if cmd == "" {
			continue
		}
		if counts[cmd] == 0 {
			order = append(order, cmd)
		}
		counts[cmd]++
	}

	// Most frequent first; ties keep first-seen order.
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > topBashCommands {
		order = order[:topBashCommands]
	}

	cmds := make([]model.BashCommand, 0, len(order))
	categories := make(map[string]int)
	for _, cmd := range order {
		category := CategorizeBash(cmd)
		categories[category] += counts[cmd]
		cmds = append(cmds, model.BashCommand{
			Command:  cut(cmd, maxBashCommand),
			Base:     strings.Fields(cmd)[0],
			Count:    counts[cmd],
			Category: category,
		})
	}
	return cmds, categories
}

func decodeSpawn(raw json.RawMessage) SpawnInfo {
	var in struct {
		SubagentType any `json:"subagent_type"`
		Description  any `json:"description"`
	}
	_ = json.Unmarshal(raw, &in)
	s, _ := in.SubagentType.(string)
	d, _ := in.Description.(string)
	return SpawnInfo{SubagentType: s, Description: d}
}

func isSystemText(s string) bool {
	return strings.HasPrefix(s, "<local-command") || strings.HasPrefix(s, "<command-")
}

func stripLeadingTags(s string) string {
	return strings.TrimSpace(leadingTags.ReplaceAllString(s, ""))
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func updateTimeRange(minTime, maxTime *time.Time, ts time.Time) {
	if minTime.IsZero() || ts.Before(*minTime) {
		*minTime = ts
	}
	if maxTime.IsZero() || ts.After(*maxTime) {
		*maxTime = ts
	}
}

// ellipsize cuts s to n runes and marks the cut with "...".
func ellipsize(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func cut(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
