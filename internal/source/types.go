package source

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RawRecord represents a single line in a Claude Code JSONL session file.
// Fields whose shape varies by record type are kept raw and decoded on demand.
type RawRecord struct {
	Type            string      `json:"type"`
	Subtype         string      `json:"subtype,omitempty"`
	Timestamp       string      `json:"timestamp,omitempty"`
	SessionID       string      `json:"sessionId,omitempty"`
	Slug            string      `json:"slug,omitempty"`
	Cwd             string      `json:"cwd,omitempty"`
	GitBranch       string      `json:"gitBranch,omitempty"`
	PermissionMode  string      `json:"permissionMode,omitempty"`
	ParentToolUseID string      `json:"parentToolUseID,omitempty"`
	Message         *RawMessage `json:"message,omitempty"`

	// For system entries with subtype "turn_duration"
	DurationMs float64 `json:"durationMs,omitempty"`

	Data             json.RawMessage `json:"data,omitempty"`
	ThinkingMetadata json.RawMessage `json:"thinkingMetadata,omitempty"`
}

// RawMessage represents the message envelope of user and assistant entries.
type RawMessage struct {
	ID      string     `json:"id"`
	Role    string     `json:"role"`
	Model   string     `json:"model"`
	Content RawContent `json:"content"`
	Usage   *RawUsage  `json:"usage,omitempty"`
}

// RawUsage holds token counts from the API response.
type RawUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// RawContent is message content, which is either a plain string or a
// list of blocks. List elements that are bare strings become text blocks.
type RawContent struct {
	Text   string
	Blocks []RawBlock
	IsList bool
}

// RawBlock is one element of a content list.
type RawBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	IsError bool            `json:"is_error,omitempty"`

	// plain marks a bare string element of a content list.
	plain bool
}

// UnmarshalJSON accepts a string, a list of blocks/strings, or null.
// List elements that are neither objects nor strings are dropped.
func (c *RawContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = RawContent{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = RawContent{Text: s}
		return nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return err
		}
		out := RawContent{IsList: true, Blocks: make([]RawBlock, 0, len(elems))}
		for _, e := range elems {
			e = bytes.TrimSpace(e)
			if len(e) == 0 {
				continue
			}
			switch e[0] {
			case '"':
				var s string
				if err := json.Unmarshal(e, &s); err == nil {
					out.Blocks = append(out.Blocks, RawBlock{Type: "text", Text: s, plain: true})
				}
			case '{':
				var b RawBlock
				if err := json.Unmarshal(e, &b); err == nil || isTypeMismatch(err) {
					out.Blocks = append(out.Blocks, b)
				}
			}
		}
		*c = out
		return nil
	}
	// Numbers, objects and booleans carry no text.
	*c = RawContent{}
	return nil
}

// TextOf joins the text carried by message content. ok is false when the
// content has no text at all (e.g. a list of tool results).
func (c RawContent) TextOf() (text string, ok bool) {
	if !c.IsList {
		return c.Text, c.Text != ""
	}
	var parts []string
	for _, b := range c.Blocks {
		if b.plain || b.Type == "text" {
			parts = append(parts, b.Text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

type progressData struct {
	AgentID string `json:"agentId"`
}

type thinkingMetadata struct {
	Level *string `json:"level"`
}

// DiscoveredFile represents a session JSONL file found during directory scanning.
type DiscoveredFile struct {
	Path       string
	Project    string // decoded display name (e.g., "gitlore")
	ProjectDir string // raw directory name
	SessionID  string // extracted from filename
}
