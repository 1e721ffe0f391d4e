package extract

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/theirongolddev/ccdash/internal/model"
)

func block(name, input string) Block {
	return Block{ID: "toolu_1", Name: name, Input: json.RawMessage(input)}
}

var testMeta = Meta{
	Timestamp:  time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	SessionID:  "sess",
	Project:    "proj",
	SourcePath: "/tmp/sess.jsonl",
	Line:       7,
	Cwd:        "/work",
	GitBranch:  "main",
}

func TestRegistry_KnownKinds(t *testing.T) {
	reg := NewRegistry()
	opts := DefaultOptions()

	tests := []struct {
		name  string
		input string
		check func(t *testing.T, inv model.Invocation)
	}{
		{"Bash", `{"command":"git status","description":"check","timeout":60000}`, func(t *testing.T, inv model.Invocation) {
			want := &model.BashInput{Command: "git status", Description: "check", TimeoutMs: 60000}
			if diff := cmp.Diff(want, inv.Bash); diff != "" {
				t.Errorf("Bash mismatch (-want +got):\n%s", diff)
			}
		}},
		{"Read", `{"file_path":"/a/b.go","offset":10,"limit":20}`, func(t *testing.T, inv model.Invocation) {
			want := &model.ReadInput{FilePath: "/a/b.go", Offset: 10, Limit: 20}
			if diff := cmp.Diff(want, inv.Read); diff != "" {
				t.Errorf("Read mismatch (-want +got):\n%s", diff)
			}
		}},
		{"Write", `{"file_path":"/a/c.md","content":"  hello world  "}`, func(t *testing.T, inv model.Invocation) {
			want := &model.WriteInput{FilePath: "/a/c.md", ContentLength: 15, Preview: "hello world"}
			if diff := cmp.Diff(want, inv.Write); diff != "" {
				t.Errorf("Write mismatch (-want +got):\n%s", diff)
			}
		}},
		{"Edit", `{"file_path":"/a/d.py","old_string":"x = 1","new_string":"x = 2","replace_all":true}`, func(t *testing.T, inv model.Invocation) {
			want := &model.EditInput{FilePath: "/a/d.py", OldPreview: "x = 1", NewPreview: "x = 2", ReplaceAll: true}
			if diff := cmp.Diff(want, inv.Edit); diff != "" {
				t.Errorf("Edit mismatch (-want +got):\n%s", diff)
			}
		}},
		{"Grep", `{"pattern":"TODO","path":"src","-i":true,"-A":3,"multiline":true}`, func(t *testing.T, inv model.Invocation) {
			want := &model.GrepInput{Pattern: "TODO", Path: "src", OutputMode: "files_with_matches", Flags: "-i -A 3 -U"}
			if diff := cmp.Diff(want, inv.Grep); diff != "" {
				t.Errorf("Grep mismatch (-want +got):\n%s", diff)
			}
		}},
		{"Glob", `{"pattern":"**/*.go"}`, func(t *testing.T, inv model.Invocation) {
			if inv.Glob == nil || inv.Glob.Pattern != "**/*.go" {
				t.Errorf("Glob = %+v", inv.Glob)
			}
		}},
		{"TaskUpdate", `{"taskId":"3","status":"completed","subject":"Write tests"}`, func(t *testing.T, inv model.Invocation) {
			want := &model.TaskInput{Operation: "update", Subject: "Write tests", TaskID: "3", Status: "completed"}
			if diff := cmp.Diff(want, inv.Task); diff != "" {
				t.Errorf("Task mismatch (-want +got):\n%s", diff)
			}
		}},
		{"TodoWrite", `{"todos":[{"content":"first item","status":"pending"},{"content":"second"}]}`, func(t *testing.T, inv model.Invocation) {
			want := &model.TodoInput{Preview: "first item", Items: 2}
			if diff := cmp.Diff(want, inv.Todo); diff != "" {
				t.Errorf("Todo mismatch (-want +got):\n%s", diff)
			}
		}},
		{"WebFetch", `{"url":"https://example.com","prompt":"x"}`, func(t *testing.T, inv model.Invocation) {
			if inv.Special == nil || inv.Special.Query != "https://example.com" {
				t.Errorf("Special = %+v", inv.Special)
			}
		}},
		{"AskUserQuestion", `{"questions":[{"question":"Which DB?"},{"question":"ignored"}]}`, func(t *testing.T, inv model.Invocation) {
			if inv.Special == nil || inv.Special.Question != "Which DB?" {
				t.Errorf("Special = %+v", inv.Special)
			}
		}},
		{"Task", `{"subagent_type":"Explore","description":"Find callers","prompt":"..."}`, func(t *testing.T, inv model.Invocation) {
			want := &model.SpecialInput{SubagentType: "Explore", Description: "Find callers"}
			if diff := cmp.Diff(want, inv.Special); diff != "" {
				t.Errorf("Special mismatch (-want +got):\n%s", diff)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reg.known(tt.name) {
				t.Fatalf("known(%q) = false", tt.name)
			}
			inv, err := reg.Extract(block(tt.name, tt.input), testMeta, opts)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if inv.Tool != tt.name || inv.ToolUseID != "toolu_1" || inv.Line != 7 || inv.GitBranch != "main" {
				t.Errorf("metadata = %+v", inv)
			}
			tt.check(t, inv)
		})
	}
}

func TestRegistry_GenericFallback(t *testing.T) {
	reg := NewRegistry()
	if reg.known("mcp__github__create_issue") {
		t.Fatal("unexpected dedicated extractor")
	}

	inv, err := reg.Extract(block("mcp__github__create_issue", `{ "title" : "Bug",  "labels": ["a"] }`), testMeta, DefaultOptions())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if inv.RawInput != `{"title":"Bug","labels":["a"]}` {
		t.Errorf("RawInput = %q", inv.RawInput)
	}
	if inv.Bash != nil || inv.Special != nil {
		t.Error("generic invocation has a kind payload")
	}
}

func TestGeneric_BoundedToTwicePreview(t *testing.T) {
	long := `{"data":"` + strings.Repeat("x", 500) + `"}`
	inv, err := Generic.Extract(block("Unknown", long), testMeta, Options{IncludePreviews: true, PreviewLength: 10})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := len(inv.RawInput); got != 23 {
		t.Errorf("len(RawInput) = %d, want 23 (20 + ...)", got)
	}
	if !strings.HasSuffix(inv.RawInput, "...") {
		t.Errorf("RawInput = %q, want ... suffix", inv.RawInput)
	}
}

func TestExtract_LenientTypes(t *testing.T) {
	// A string offset and a non-object input must not fail the block.
	inv, err := Read.Extract(block("Read", `{"file_path":"/x","offset":"12"}`), testMeta, DefaultOptions())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if inv.Read.Offset != 12 {
		t.Errorf("Offset = %d, want 12", inv.Read.Offset)
	}

	if _, err := Read.Extract(block("Read", `[1,2]`), testMeta, DefaultOptions()); err == nil {
		t.Error("expected error for array input")
	}
}

func TestPreviewsDisabled(t *testing.T) {
	inv, err := Write.Extract(block("Write", `{"file_path":"/x","content":"secret"}`), testMeta, Options{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if inv.Write.Preview != "" || inv.Write.ContentLength != 6 {
		t.Errorf("Write = %+v", inv.Write)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"  short ", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"héllo wörld", 5, "héllo..."},
		{"exact", 5, "exact"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestDetail(t *testing.T) {
	reg := NewRegistry()
	opts := DefaultOptions()

	tests := []struct {
		name, input, want string
	}{
		{"Bash", `{"command":"ls -la"}`, "ls -la"},
		{"Read", `{"file_path":"/a.go"}`, "/a.go"},
		{"Grep", `{"pattern":"foo","path":"pkg"}`, "foo in pkg"},
		{"Grep", `{"pattern":"foo"}`, "foo"},
		{"Glob", `{"pattern":"*.md"}`, "*.md"},
		{"TaskList", `{}`, "list"},
		{"Skill", `{"skill":"pdf"}`, "pdf"},
		{"Task", `{"description":"Survey repo","subagent_type":"Explore"}`, "Survey repo"},
		{"SomethingNew", `{"a":1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		inv, err := reg.Extract(block(tt.name, tt.input), testMeta, opts)
		if err != nil {
			t.Fatalf("%s: Extract: %v", tt.name, err)
		}
		if got := Detail(inv); got != tt.want {
			t.Errorf("Detail(%s %s) = %q, want %q", tt.name, tt.input, got, tt.want)
		}
	}
}
