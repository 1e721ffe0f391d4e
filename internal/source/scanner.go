package source

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scan is the result of discovering session files.
type Scan struct {
	Files []DiscoveredFile
	// UnreadableDirs lists project directories that could not be listed.
	// Cached sessions under them must not be treated as deleted.
	UnreadableDirs []string
}

// ScanDir discovers top-level session files (<project>/<session>.jsonl).
func ScanDir(claudeDir string) ([]DiscoveredFile, error) {
	scan, err := ScanProjects(claudeDir)
	return scan.Files, err
}

// ScanProjects lists the Claude projects directory one project at a time.
// Project directories reached through a symlink are entered. Subagent logs
// under <project>/<session>/subagents/ belong to their parent and are not
// returned. A missing projects directory yields an empty Scan.
func ScanProjects(claudeDir string) (Scan, error) {
	projectsDir := ProjectsDir(claudeDir)

	info, err := os.Stat(projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Scan{}, nil
		}
		return Scan{}, err
	}
	if !info.IsDir() {
		return Scan{}, nil
	}

	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		return Scan{}, err
	}

	var scan Scan
	for _, e := range entries {
		dir := filepath.Join(projectsDir, e.Name())
		if !isDirEntry(dir, e) {
			// A dangling link may be a project whose target is offline.
			if e.Type()&fs.ModeSymlink != 0 {
				scan.UnreadableDirs = append(scan.UnreadableDirs, dir)
			}
			continue
		}
		sessions, err := os.ReadDir(dir)
		if err != nil {
			scan.UnreadableDirs = append(scan.UnreadableDirs, dir)
			continue
		}
		for _, f := range sessions {
			if f.IsDir() || filepath.Ext(f.Name()) != ".jsonl" {
				continue
			}
			scan.Files = append(scan.Files, DiscoveredFile{
				Path:       filepath.Join(dir, f.Name()),
				Project:    decodeProjectName(e.Name()),
				ProjectDir: e.Name(),
				SessionID:  strings.TrimSuffix(f.Name(), ".jsonl"),
			})
		}
	}

	sort.Slice(scan.Files, func(i, j int) bool { return scan.Files[i].Path < scan.Files[j].Path })
	return scan, nil
}

// isDirEntry reports whether e is a directory, following a symlink.
func isDirEntry(path string, e os.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ProjectsDir returns the directory holding per-project session logs.
func ProjectsDir(claudeDir string) string {
	return filepath.Join(claudeDir, "projects")
}

// SubagentDir returns the directory holding a session's subagent logs.
func SubagentDir(sessionPath string) string {
	dir, name := filepath.Split(sessionPath)
	return filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name)), "subagents")
}

// decodeProjectName extracts a human-readable project name from the encoded directory name.
// Claude Code encodes absolute paths by replacing "/" with "-", so:
//
//	"-Users-tayloreernisse-projects-gitlore" -> "gitlore"
//	"-Users-tayloreernisse-projects-my-cool-project" -> "my-cool-project"
//
// We find the last known path component ("projects", "repos", "src", "code", "home")
// and take everything after it. Falls back to the last non-empty segment.
func decodeProjectName(dirName string) string {
	parts := strings.Split(dirName, "-")

	knownParents := map[string]bool{
		"projects": true, "repos": true, "src": true,
		"code": true, "workspace": true, "dev": true,
	}

	for i := len(parts) - 2; i >= 0; i-- {
		if knownParents[strings.ToLower(parts[i])] {
			name := strings.Join(parts[i+1:], "-")
			if name != "" {
				return name
			}
		}
	}

	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}

	return dirName
}

// CountProjects returns the number of unique projects in a set of discovered files.
func CountProjects(files []DiscoveredFile) int {
	seen := make(map[string]struct{})
	for _, f := range files {
		seen[f.Project] = struct{}{}
	}
	return len(seen)
}
