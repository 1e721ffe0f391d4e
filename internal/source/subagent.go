package source

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/theirongolddev/ccdash/internal/extract"
	"github.com/theirongolddev/ccdash/internal/model"
)

// FindSubagentFiles lists <dir>/<stem>/subagents/*.jsonl for a session
// file, sorted by name.
func FindSubagentFiles(sessionPath string) []string {
	matches, err := filepath.Glob(filepath.Join(SubagentDir(sessionPath), "*.jsonl"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

// ResolveSubagents parses every subagent log of a session. info maps agent
// ids to what the parent declared when spawning them. Subagents that made
// no tool calls, or whose logs cannot be read, are left out.
func (a *Assembler) ResolveSubagents(sessionPath, project string, info map[string]SpawnInfo) []model.SubagentRecord {
	files := FindSubagentFiles(sessionPath)
	out := make([]model.SubagentRecord, 0, len(files))
	for _, path := range files {
		sa, ok := a.assembleSubagent(path, project, info)
		if ok {
			out = append(out, sa)
		}
	}
	return out
}

// assembleSubagent is the reduced pass: active time, the first qualifying
// user message as description, and tool_use blocks.
func (a *Assembler) assembleSubagent(path, project string, info map[string]SpawnInfo) (model.SubagentRecord, bool) {
	if fi, err := os.Stat(path); err != nil || fi.Size() > a.opts.MaxFileSize {
		return model.SubagentRecord{}, false
	}

	var (
		invocations []model.Invocation
		description string
		activeMs    int64
	)

	for line, err := range NewRecordStream(path).Lines() {
		if err != nil {
			return model.SubagentRecord{}, false
		}
		if line.Malformed {
			continue
		}
		rec := line.Record

		if rec.Type == "system" && rec.Subtype == "turn_duration" {
			activeMs += int64(rec.DurationMs)
		}

		msg := rec.Message
		if msg == nil {
			continue
		}
		if description == "" && msg.Role == "user" {
			description = subagentDescription(msg.Content)
		}
		if !msg.Content.IsList {
			continue
		}

		ts, _ := parseTimestamp(rec.Timestamp)
		meta := extract.Meta{
			Timestamp:  ts,
			SessionID:  rec.SessionID,
			Project:    project,
			SourcePath: path,
			Line:       line.Number,
			Cwd:        rec.Cwd,
			GitBranch:  rec.GitBranch,
		}
		for _, b := range msg.Content.Blocks {
			if b.Type != "tool_use" || b.Name == "" {
				continue
			}
			inv, err := a.opts.Registry.Extract(extract.Block{ID: b.ID, Name: b.Name, Input: b.Input}, meta, a.opts.Extract)
			if err != nil {
				continue
			}
			invocations = append(invocations, inv)
		}
	}

	if len(invocations) == 0 {
		return model.SubagentRecord{}, false
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	agentID := strings.ReplaceAll(stem, "agent-", "")
	spawn := info[agentID]

	return model.SubagentRecord{
		AgentID:          agentID,
		SubagentType:     spawn.SubagentType,
		TaskDescription:  spawn.Description,
		Description:      ellipsize(description, maxSubagentDesc),
		ToolCount:        len(invocations),
		ToolCounts:       toolCounts(invocations),
		ToolCalls:        toolCalls(invocations, true),
		Invocations:      invocations,
		ActiveDurationMs: activeMs,
	}, true
}

func subagentDescription(content RawContent) string {
	text, ok := content.TextOf()
	if !ok {
		return ""
	}
	stripped := strings.TrimSpace(text)
	if isSystemText(stripped) || utf8.RuneCountInString(stripped) <= 3 || interruptSentinels[stripped] {
		return ""
	}
	if cleaned := stripLeadingTags(stripped); utf8.RuneCountInString(cleaned) > 3 {
		return cleaned
	}
	return stripped
}
