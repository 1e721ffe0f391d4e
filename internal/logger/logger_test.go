package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_TextDefault(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf))
	l.Info("hello", "key", "value")

	out := buf.String()
	for _, want := range []string{"hello", "key", "value"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestNew_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	New(WithWriter(&buf), WithDebug(false)).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record written at info level: %q", buf.String())
	}

	New(WithWriter(&buf), WithDebug(true)).Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug record missing at debug level: %q", buf.String())
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	New(WithWriter(&buf), WithJSON(true)).Info("structured", "count", 42)

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if parsed["msg"] != "structured" {
		t.Errorf("msg = %v, want structured", parsed["msg"])
	}
	if parsed["count"] != float64(42) {
		t.Errorf("count = %v, want 42", parsed["count"])
	}
}

func TestNew_Pretty(t *testing.T) {
	var buf bytes.Buffer
	New(WithWriter(&buf), WithPretty(true)).Info("pretty output", "files", 3)
	if !strings.Contains(buf.String(), "pretty output") {
		t.Errorf("pretty output missing message: %q", buf.String())
	}
}

func TestMulti_FansOut(t *testing.T) {
	var text, js bytes.Buffer
	l := Multi(New(WithWriter(&text)), New(WithWriter(&js), WithJSON(true)))
	l.With("run_id", "abc").Warn("fan out")

	if !strings.Contains(text.String(), "fan out") || !strings.Contains(text.String(), "run_id=abc") {
		t.Errorf("text handler output = %q", text.String())
	}
	if !strings.Contains(js.String(), `"run_id":"abc"`) {
		t.Errorf("json handler output = %q", js.String())
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	OrNop(nil).Error("discarded")
}

func TestNew_WithLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithLevel(slog.LevelWarn))
	l.Info("quiet")
	l.Warn("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Errorf("warn level output = %q", buf.String())
	}
}
