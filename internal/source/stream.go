package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
)

// Line is one non-blank line of a session log. Record is nil when the line
// failed to decode; Malformed is set in that case.
type Line struct {
	Number    int
	Record    *RawRecord
	Malformed bool
}

// RecordStream lazily decodes the lines of one JSONL file.
type RecordStream struct {
	path string
}

// NewRecordStream returns a stream over path. Nothing is opened until Lines is ranged over.
func NewRecordStream(path string) *RecordStream {
	return &RecordStream{path: path}
}

// Lines yields every non-blank line in file order. Line numbers are
// 1-based and count blank lines. Each range re-opens the file. An open or
// read failure is yielded once as a non-nil error and ends the sequence.
func (s *RecordStream) Lines() iter.Seq2[Line, error] {
	return func(yield func(Line, error) bool) {
		f, err := os.Open(s.path)
		if err != nil {
			yield(Line{}, fmt.Errorf("opening %s: %w", s.path, err))
			return
		}
		defer func() { _ = f.Close() }()

		r := bufio.NewReaderSize(f, 256*1024)
		n := 0
		for {
			raw, readErr := r.ReadBytes('\n')
			if len(raw) > 0 {
				n++
				if line := bytes.TrimSpace(raw); len(line) > 0 {
					if !yield(decodeLine(n, line), nil) {
						return
					}
				}
			}
			if readErr != nil {
				if !errors.Is(readErr, io.EOF) {
					yield(Line{}, fmt.Errorf("reading %s: %w", s.path, readErr))
				}
				return
			}
		}
	}
}

// decodeLine decodes one JSON object. A member whose value has the wrong
// type is left zero and the rest of the record is kept.
func decodeLine(n int, line []byte) Line {
	if line[0] != '{' {
		return Line{Number: n, Malformed: true}
	}
	var rec RawRecord
	if err := json.Unmarshal(line, &rec); err != nil && !isTypeMismatch(err) {
		return Line{Number: n, Malformed: true}
	}
	return Line{Number: n, Record: &rec}
}

func isTypeMismatch(err error) bool {
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr)
}
