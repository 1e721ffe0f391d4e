package extract

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/theirongolddev/ccdash/internal/model"
)

// Bash extracts shell commands.
var Bash = ExtractorFunc(func(b Block, meta Meta, _ Options) (model.Invocation, error) {
	in, err := decodeInput(b.Input)
	if err != nil {
		return model.Invocation{}, err
	}
	inv := base(b, meta)
	inv.Bash = &model.BashInput{
		Command:     in.str("command"),
		Description: in.str("description"),
		TimeoutMs:   in.num("timeout"),
	}
	return inv, nil
})

// Read extracts file reads.
var Read = ExtractorFunc(func(b Block, meta Meta, _ Options) (model.Invocation, error) {
	in, err := decodeInput(b.Input)
	if err != nil {
		return model.Invocation{}, err
	}
	inv := base(b, meta)
	inv.Read = &model.ReadInput{
		FilePath: in.str("file_path"),
		Offset:   in.num("offset"),
		Limit:    in.num("limit"),
		Pages:    in.text("pages"),
	}
	return inv, nil
})

// Write extracts whole-file writes. Only the content length and a preview are kept.
var Write = ExtractorFunc(func(b Block, meta Meta, opts Options) (model.Invocation, error) {
	in, err := decodeInput(b.Input)
	if err != nil {
		return model.Invocation{}, err
	}
	content := in.str("content")
	inv := base(b, meta)
	inv.Write = &model.WriteInput{
		FilePath:      in.str("file_path"),
		ContentLength: len(content),
		Preview:       preview(content, opts),
	}
	return inv, nil
})

// Edit extracts string-replacement edits.
var Edit = ExtractorFunc(func(b Block, meta Meta, opts Options) (model.Invocation, error) {
	in, err := decodeInput(b.Input)
	if err != nil {
		return model.Invocation{}, err
	}
	inv := base(b, meta)
	inv.Edit = &model.EditInput{
		FilePath:   in.str("file_path"),
		OldPreview: preview(in.str("old_string"), opts),
		NewPreview: preview(in.str("new_string"), opts),
		ReplaceAll: in.flag("replace_all"),
	}
	return inv, nil
})

// Grep extracts content searches. Context and mode options collapse into
// a single flag string.
var Grep = ExtractorFunc(func(b Block, meta Meta, _ Options) (model.Invocation, error) {
	in, err := decodeInput(b.Input)
	if err != nil {
		return model.Invocation{}, err
	}

	var flags []string
	if in.flag("-i") {
		flags = append(flags, "-i")
	}
	for _, k := range []string{"-A", "-B", "-C"} {
		if in.flag(k) {
			flags = append(flags, k+" "+in.text(k))
		}
	}
	if in.flag("context") {
		flags = append(flags, "-C "+in.text("context"))
	}
	if in.flag("multiline") {
		flags = append(flags, "-U")
	}

	inv := base(b, meta)
	inv.Grep = &model.GrepInput{
		Pattern:    in.str("pattern"),
		Path:       in.str("path"),
		OutputMode: in.strOr("output_mode", "files_with_matches"),
		Flags:      strings.Join(flags, " "),
		Glob:       in.str("glob"),
		Type:       in.str("type"),
	}
	return inv, nil
})

// Glob extracts file pattern searches.
var Glob = ExtractorFunc(func(b Block, meta Meta, _ Options) (model.Invocation, error) {
	in, err := decodeInput(b.Input)
	if err != nil {
		return model.Invocation{}, err
	}
	inv := base(b, meta)
	inv.Glob = &model.GlobInput{
		Pattern: in.str("pattern"),
		Path:    in.str("path"),
	}
	return inv, nil
})

var taskOperations = map[string]string{
	"TaskCreate": "create",
	"TaskUpdate": "update",
	"TaskList":   "list",
	"TaskGet":    "get",
	"TaskOutput": "output",
}

// Task extracts task-list management calls.
var Task = ExtractorFunc(func(b Block, meta Meta, opts Options) (model.Invocation, error) {
	in, err := decodeInput(b.Input)
	if err != nil {
		return model.Invocation{}, err
	}
	inv := base(b, meta)
	inv.Task = &model.TaskInput{
		Operation:   taskOperations[b.Name],
		Subject:     in.str("subject"),
		Description: preview(in.str("description"), opts),
		TaskID:      in.text("taskId"),
		Status:      in.str("status"),
	}
	return inv, nil
})

// Todo extracts TodoWrite calls. Newer logs carry a todos list instead of
// a content string; the first item's content stands in as the preview.
var Todo = ExtractorFunc(func(b Block, meta Meta, opts Options) (model.Invocation, error) {
	in, err := decodeInput(b.Input)
	if err != nil {
		return model.Invocation{}, err
	}
	content := in.str("content")
	items := 0
	if todos, ok := in["todos"].([]any); ok {
		items = len(todos)
		if content == "" && items > 0 {
			if first, ok := todos[0].(map[string]any); ok {
				content, _ = first["content"].(string)
			}
		}
	}
	inv := base(b, meta)
	inv.Todo = &model.TodoInput{
		Preview: preview(content, opts),
		Items:   items,
	}
	return inv, nil
})

// Special extracts the single interesting field of workflow tools
// (skills, web access, questions, plan mode, notebooks, subagent spawns).
var Special = ExtractorFunc(func(b Block, meta Meta, opts Options) (model.Invocation, error) {
	in, err := decodeInput(b.Input)
	if err != nil {
		return model.Invocation{}, err
	}
	sp := &model.SpecialInput{}
	switch b.Name {
	case "Skill":
		sp.Skill = in.str("skill")
	case "WebSearch":
		sp.Query = in.str("query")
	case "WebFetch":
		sp.Query = in.str("url")
	case "AskUserQuestion":
		if qs, ok := in["questions"].([]any); ok && len(qs) > 0 {
			if q, ok := qs[0].(map[string]any); ok {
				text, _ := q["question"].(string)
				sp.Question = preview(text, opts)
			}
		}
	case "NotebookEdit":
		sp.Notebook = in.str("notebook_path")
	case "TaskStop":
		sp.TaskID = in.text("task_id")
		if sp.TaskID == "" {
			sp.TaskID = in.text("shell_id")
		}
	default:
		if IsSpawn(b.Name) {
			sp.SubagentType = in.str("subagent_type")
			sp.Description = in.str("description")
		}
	}
	inv := base(b, meta)
	inv.Special = sp
	return inv, nil
})

// Generic keeps the compact JSON of the input, bounded to twice the preview length.
var Generic = ExtractorFunc(func(b Block, meta Meta, opts Options) (model.Invocation, error) {
	raw := "{}"
	if len(b.Input) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, b.Input); err != nil {
			return model.Invocation{}, err
		}
		raw = buf.String()
	}
	if opts.IncludePreviews {
		raw = Truncate(raw, opts.PreviewLength*2)
	}
	inv := base(b, meta)
	inv.RawInput = raw
	return inv, nil
})
