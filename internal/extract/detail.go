package extract

import (
	"unicode/utf8"

	"github.com/theirongolddev/ccdash/internal/model"
)

// Detail returns the one-line description shown for an invocation in a call list.
func Detail(inv model.Invocation) string {
	switch {
	case inv.Bash != nil:
		return cut(inv.Bash.Command, 200)
	case inv.Read != nil:
		return inv.Read.FilePath
	case inv.Write != nil:
		return inv.Write.FilePath
	case inv.Edit != nil:
		return inv.Edit.FilePath
	case inv.Grep != nil:
		if inv.Grep.Path != "" {
			return inv.Grep.Pattern + " in " + inv.Grep.Path
		}
		return inv.Grep.Pattern
	case inv.Glob != nil:
		return inv.Glob.Pattern
	case inv.Task != nil:
		if inv.Task.Subject != "" {
			return inv.Task.Subject
		}
		return inv.Task.Operation
	case inv.Todo != nil:
		return inv.Todo.Preview
	case inv.Special != nil:
		sp := inv.Special
		for _, v := range []string{sp.Description, sp.Skill, sp.Query, sp.Question, sp.Notebook, sp.TaskID} {
			if v != "" {
				return v
			}
		}
		return ""
	}
	return cut(inv.RawInput, 150)
}

// cut returns the first n runes of s without a suffix.
func cut(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
