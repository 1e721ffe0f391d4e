// Package model defines domain types for ccdash sessions and aggregates.
package model

import "time"

// TokenCounts holds the four billed token classes.
type TokenCounts struct {
	Input         int64 `json:"input"`
	Output        int64 `json:"output"`
	CacheCreation int64 `json:"cache_creation"`
	CacheRead     int64 `json:"cache_read"`
}

// Add accumulates o into t.
func (t *TokenCounts) Add(o TokenCounts) {
	t.Input += o.Input
	t.Output += o.Output
	t.CacheCreation += o.CacheCreation
	t.CacheRead += o.CacheRead
}

// Total returns the sum across all classes.
func (t TokenCounts) Total() int64 {
	return t.Input + t.Output + t.CacheCreation + t.CacheRead
}

// Turn is one qualifying human message.
type Turn struct {
	Number      int       `json:"turn_number"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp,omitzero"`
	IsInterrupt bool      `json:"is_interrupt"`
}

// BashCommand is one distinct shell command with its frequency.
type BashCommand struct {
	Command  string `json:"command"`
	Base     string `json:"base"`
	Count    int    `json:"count"`
	Category string `json:"category"`
}

// ToolCall is the display row for one invocation.
type ToolCall struct {
	Seq        int       `json:"seq"`
	Time       time.Time `json:"time,omitzero"`
	Tool       string    `json:"tool"`
	Detail     string    `json:"detail"`
	IsSubagent bool      `json:"is_subagent"`
}

// SubagentRecord is the reduced view of a delegated agent's log.
type SubagentRecord struct {
	AgentID          string         `json:"agent_id"`
	SubagentType     string         `json:"subagent_type"`
	TaskDescription  string         `json:"task_description"`
	Description      string         `json:"description,omitempty"`
	ToolCount        int            `json:"tool_count"`
	ToolCounts       map[string]int `json:"tool_counts"`
	ToolCalls        []ToolCall     `json:"tool_calls"`
	Invocations      []Invocation   `json:"invocations,omitempty"`
	ActiveDurationMs int64          `json:"active_duration_ms"`
}

// SessionRecord is the full reconstruction of one session log file.
type SessionRecord struct {
	SessionID     string    `json:"session_id"`
	Slug          string    `json:"slug,omitempty"`
	Project       string    `json:"project"`
	FilePath      string    `json:"file_path"`
	FirstPrompt   string    `json:"first_prompt,omitempty"`
	PromptPreview string    `json:"prompt_preview,omitempty"`
	TurnCount     int       `json:"turn_count"`
	StartTime     time.Time `json:"start_time,omitzero"`
	EndTime       time.Time `json:"end_time,omitzero"`
	Model         string    `json:"model,omitempty"`
	ModelsUsed    []string  `json:"models_used"`

	TotalTools          int                       `json:"total_tools"`
	ToolCounts          map[string]int            `json:"tool_counts"`
	FileExtensions      map[string]int            `json:"file_extensions"`
	FilesTouched        map[string]map[string]int `json:"files_touched"`
	BashCommands        []BashCommand             `json:"bash_commands"`
	BashCategorySummary map[string]int            `json:"bash_category_summary"`
	ToolCalls           []ToolCall                `json:"tool_calls"`
	Invocations         []Invocation              `json:"invocations"`

	UserTurns      []Turn `json:"user_turns"`
	InterruptCount int    `json:"interrupt_count"`

	Tokens                TokenCounts `json:"tokens"`
	ActiveDurationMs      int64       `json:"active_duration_ms"`
	TotalActiveDurationMs int64       `json:"total_active_duration_ms"`
	PermissionMode        string      `json:"permission_mode,omitempty"`
	ThinkingLevel         string      `json:"thinking_level,omitempty"`
	ToolErrors            int         `json:"tool_errors"`
	ToolSuccesses         int         `json:"tool_successes"`
	CostEstimate          float64     `json:"cost_estimate"`

	Subagents []SubagentRecord `json:"subagents"`
}

// SessionSummary is the lightweight per-session row used by list views
// and by the aggregate builder.
type SessionSummary struct {
	SessionID             string         `json:"session_id"`
	Project               string         `json:"project"`
	Slug                  string         `json:"slug,omitempty"`
	PromptPreview         string         `json:"prompt_preview,omitempty"`
	StartTime             time.Time      `json:"start_time,omitzero"`
	EndTime               time.Time      `json:"end_time,omitzero"`
	Model                 string         `json:"model,omitempty"`
	TotalTools            int            `json:"total_tools"`
	TotalActions          int            `json:"total_actions"`
	TurnCount             int            `json:"turn_count"`
	SubagentCount         int            `json:"subagent_count"`
	SubagentTools         int            `json:"subagent_tools"`
	ActiveDurationMs      int64          `json:"active_duration_ms"`
	TotalActiveDurationMs int64          `json:"total_active_duration_ms"`
	CostEstimate          float64        `json:"cost_estimate"`
	PermissionMode        string         `json:"permission_mode,omitempty"`
	InterruptCount        int            `json:"interrupt_count"`
	ThinkingLevel         string         `json:"thinking_level,omitempty"`
	ToolErrors            int            `json:"tool_errors"`
	ToolCounts            map[string]int `json:"tool_counts"`
	FileExtensions        map[string]int `json:"file_extensions"`
	Tokens                TokenCounts    `json:"tokens"`
}

// Summary projects the record down to its list-view row. Tool counts
// combine the session's own tools with every subagent's.
func (s *SessionRecord) Summary() SessionSummary {
	combined := make(map[string]int, len(s.ToolCounts))
	for tool, n := range s.ToolCounts {
		combined[tool] += n
	}
	subagentTools := 0
	for _, sa := range s.Subagents {
		subagentTools += sa.ToolCount
		for tool, n := range sa.ToolCounts {
			combined[tool] += n
		}
	}

	exts := make(map[string]int, len(s.FileExtensions))
	for ext, n := range s.FileExtensions {
		exts[ext] = n
	}

	return SessionSummary{
		SessionID:             s.SessionID,
		Project:               s.Project,
		Slug:                  s.Slug,
		PromptPreview:         s.PromptPreview,
		StartTime:             s.StartTime,
		EndTime:               s.EndTime,
		Model:                 s.Model,
		TotalTools:            s.TotalTools,
		TotalActions:          s.TotalTools + subagentTools,
		TurnCount:             s.TurnCount,
		SubagentCount:         len(s.Subagents),
		SubagentTools:         subagentTools,
		ActiveDurationMs:      s.ActiveDurationMs,
		TotalActiveDurationMs: s.TotalActiveDurationMs,
		CostEstimate:          s.CostEstimate,
		PermissionMode:        s.PermissionMode,
		InterruptCount:        s.InterruptCount,
		ThinkingLevel:         s.ThinkingLevel,
		ToolErrors:            s.ToolErrors,
		ToolCounts:            combined,
		FileExtensions:        exts,
		Tokens:                s.Tokens,
	}
}
