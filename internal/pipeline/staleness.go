package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/theirongolddev/ccdash/internal/source"
	"github.com/theirongolddev/ccdash/internal/store"
)

// StatFunc reports a file's current identity. os.Stat satisfies it.
type StatFunc func(path string) (os.FileInfo, error)

// StaleFile is a discovered file that needs parsing, with the state to
// record once it has been parsed.
type StaleFile struct {
	source.DiscoveredFile
	State store.FileState
}

// Partitioned splits discovered files by whether they changed since the
// last successful parse.
type Partitioned struct {
	Stale      []StaleFile
	Current    map[string]struct{}
	Unreadable map[string]struct{} // stat failed; retried next cycle
}

// Keep returns every path whose cached data must survive this cycle: all
// discovered files, including those that could not be stat'ed.
func (p Partitioned) Keep() map[string]struct{} {
	keep := make(map[string]struct{}, len(p.Stale)+len(p.Current)+len(p.Unreadable))
	for _, f := range p.Stale {
		keep[f.Path] = struct{}{}
	}
	for path := range p.Current {
		keep[path] = struct{}{}
	}
	for path := range p.Unreadable {
		keep[path] = struct{}{}
	}
	return keep
}

// AddUnreadableDirs moves every tracked path below one of dirs into
// Unreadable, so a project directory that could not be listed keeps its
// cached sessions.
func (p *Partitioned) AddUnreadableDirs(tracked map[string]store.FileState, dirs []string) {
	if p.Unreadable == nil {
		p.Unreadable = make(map[string]struct{})
	}
	for _, dir := range dirs {
		prefix := dir + string(filepath.Separator)
		for path := range tracked {
			if strings.HasPrefix(path, prefix) {
				p.Unreadable[path] = struct{}{}
			}
		}
	}
}

// Partition compares each discovered file against the tracked index. A
// file is stale when untracked or when its mtime or size differ; a file
// that fails to stat is in neither Stale nor Current.
func Partition(tracked map[string]store.FileState, files []source.DiscoveredFile, stat StatFunc) Partitioned {
	if stat == nil {
		stat = os.Stat
	}

	p := Partitioned{
		Current:    make(map[string]struct{}, len(files)),
		Unreadable: make(map[string]struct{}),
	}
	for _, f := range files {
		info, err := stat(f.Path)
		if err != nil {
			p.Unreadable[f.Path] = struct{}{}
			continue
		}

		state := store.FileState{MtimeNs: info.ModTime().UnixNano(), SizeBytes: info.Size()}
		cached, ok := tracked[f.Path]
		if ok && cached.MtimeNs == state.MtimeNs && cached.SizeBytes == state.SizeBytes {
			p.Current[f.Path] = struct{}{}
			continue
		}
		p.Stale = append(p.Stale, StaleFile{DiscoveredFile: f, State: state})
	}
	return p
}
