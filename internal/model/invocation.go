package model

import "time"

// Invocation is one tool_use block pulled out of a session log.
// Exactly one of the per-kind input pointers is set; RawInput carries the
// compact JSON of tools without a dedicated extractor.
type Invocation struct {
	Tool       string    `json:"tool"`
	ToolUseID  string    `json:"tool_use_id,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitzero"`
	SessionID  string    `json:"session_id,omitempty"`
	Project    string    `json:"project"`
	SourcePath string    `json:"source_path"`
	Line       int       `json:"line"`
	Cwd        string    `json:"cwd,omitempty"`
	GitBranch  string    `json:"git_branch,omitempty"`

	Bash    *BashInput    `json:"bash,omitempty"`
	Read    *ReadInput    `json:"read,omitempty"`
	Write   *WriteInput   `json:"write,omitempty"`
	Edit    *EditInput    `json:"edit,omitempty"`
	Grep    *GrepInput    `json:"grep,omitempty"`
	Glob    *GlobInput    `json:"glob,omitempty"`
	Task    *TaskInput    `json:"task,omitempty"`
	Todo    *TodoInput    `json:"todo,omitempty"`
	Special *SpecialInput `json:"special,omitempty"`

	RawInput string `json:"raw_input,omitempty"`
}

// BashInput holds shell command fields.
type BashInput struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	TimeoutMs   int64  `json:"timeout_ms,omitempty"`
}

// ReadInput holds file read fields.
type ReadInput struct {
	FilePath string `json:"file_path"`
	Offset   int64  `json:"offset,omitempty"`
	Limit    int64  `json:"limit,omitempty"`
	Pages    string `json:"pages,omitempty"`
}

// WriteInput holds file write fields. Content is kept as a length and preview only.
type WriteInput struct {
	FilePath      string `json:"file_path"`
	ContentLength int    `json:"content_length"`
	Preview       string `json:"preview,omitempty"`
}

// EditInput holds in-place edit fields.
type EditInput struct {
	FilePath   string `json:"file_path"`
	OldPreview string `json:"old_preview,omitempty"`
	NewPreview string `json:"new_preview,omitempty"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

// GrepInput holds content search fields. Flags is the flattened
// option string (e.g. "-i -A 3 -U").
type GrepInput struct {
	Pattern    string `json:"pattern"`
	Path       string `json:"path,omitempty"`
	OutputMode string `json:"output_mode"`
	Flags      string `json:"flags,omitempty"`
	Glob       string `json:"glob,omitempty"`
	Type       string `json:"type,omitempty"`
}

// GlobInput holds file pattern search fields.
type GlobInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// TaskInput holds task-management tool fields (TaskCreate, TaskUpdate, ...).
type TaskInput struct {
	Operation   string `json:"operation,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Description string `json:"description,omitempty"`
	TaskID      string `json:"task_id,omitempty"`
	Status      string `json:"status,omitempty"`
}

// TodoInput holds the TodoWrite preview.
type TodoInput struct {
	Preview string `json:"preview,omitempty"`
	Items   int    `json:"items,omitempty"`
}

// SpecialInput covers workflow tools that carry one or two interesting fields.
type SpecialInput struct {
	Skill        string `json:"skill,omitempty"`
	Query        string `json:"query,omitempty"`
	Question     string `json:"question,omitempty"`
	SubagentType string `json:"subagent_type,omitempty"`
	Description  string `json:"description,omitempty"`
	Notebook     string `json:"notebook,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
}

// FilePath returns the target path for Read, Write and Edit invocations.
func (inv Invocation) FilePath() (string, bool) {
	switch {
	case inv.Read != nil:
		return inv.Read.FilePath, inv.Read.FilePath != ""
	case inv.Write != nil:
		return inv.Write.FilePath, inv.Write.FilePath != ""
	case inv.Edit != nil:
		return inv.Edit.FilePath, inv.Edit.FilePath != ""
	}
	return "", false
}
