package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/theirongolddev/ccdash/internal/source"
	"github.com/theirongolddev/ccdash/internal/store"
)

type fixture struct {
	t         *testing.T
	claudeDir string
	dbPath    string
	store     *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cache", "activity.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	claude := filepath.Join(dir, "claude")
	if err := os.MkdirAll(source.ProjectsDir(claude), 0o750); err != nil {
		t.Fatal(err)
	}
	return &fixture{t: t, claudeDir: claude, dbPath: dbPath, store: st}
}

// writeLog writes a session under projects/<project>/<id>.jsonl.
func (f *fixture) writeLog(project, id string, lines ...string) string {
	f.t.Helper()
	path := filepath.Join(source.ProjectsDir(f.claudeDir), project, id+".jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		f.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		f.t.Fatal(err)
	}
	return path
}

func (f *fixture) rebuilder(opts ...RebuilderOption) *Rebuilder {
	return f.rebuilderWith(source.NewAssembler(source.Options{}), opts...)
}

func (f *fixture) rebuilderWith(asm *source.Assembler, opts ...RebuilderOption) *Rebuilder {
	opts = append([]RebuilderOption{WithLocation(time.UTC), WithWorkers(2)}, opts...)
	return NewRebuilder(f.store, asm, f.claudeDir, opts...)
}

func (f *fixture) rebuild(r *Rebuilder) RebuildStats {
	f.t.Helper()
	stats, err := r.Rebuild(context.Background())
	if err != nil {
		f.t.Fatalf("Rebuild: %v", err)
	}
	return stats
}

func prompt(text string) string {
	return `{"type":"user","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"` + text + `"}}`
}

func bash(id, cmd string) string {
	return `{"type":"assistant","timestamp":"2025-06-01T10:00:05Z","message":{"id":"m_` + id + `","model":"claude-sonnet-4-5","content":[{"type":"tool_use","id":"` + id + `","name":"Bash","input":{"command":"` + cmd + `"}}],"usage":{"input_tokens":100,"output_tokens":20}}}`
}

func read(id, path string) string {
	return `{"type":"assistant","timestamp":"2025-06-01T10:00:06Z","message":{"id":"m_` + id + `","content":[{"type":"tool_use","id":"` + id + `","name":"Read","input":{"file_path":"` + path + `"}}]}}`
}

func TestRebuild_NoFiles(t *testing.T) {
	f := newFixture(t)
	stats := f.rebuild(f.rebuilder())

	if stats.Stale != 0 || stats.Parsed != 0 || stats.Removed != 0 {
		t.Errorf("stats = %+v, want all zero", stats)
	}
	if stats.RunID == "" {
		t.Error("RunID not set")
	}
	if _, err := f.store.Aggregate(context.Background()); !errors.Is(err, store.ErrNotBuilt) {
		t.Errorf("Aggregate err = %v, want ErrNotBuilt", err)
	}
}

func TestRebuild_IncrementalAndIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeLog("-Users-me-projects-alpha", "s1", prompt("Fix the bug"), bash("t1", "git status"))
	s2 := f.writeLog("-Users-me-projects-beta", "s2", prompt("Read the docs"), read("t2", "/docs/a.md"))
	r := f.rebuilder()

	first := f.rebuild(r)
	if first.FilesScanned != 2 || first.Stale != 2 || first.Parsed != 2 || first.TotalCached != 2 {
		t.Fatalf("first = %+v", first)
	}

	second := f.rebuild(r)
	if second.Stale != 0 || second.Parsed != 0 || second.TotalCached != 2 {
		t.Errorf("second = %+v, want nothing stale", second)
	}

	appendLine(t, s2, read("t3", "/docs/b.md"))
	third := f.rebuild(r)
	if third.Stale != 1 || third.Parsed != 1 {
		t.Errorf("third = %+v, want one stale file", third)
	}

	detail, err := f.store.SessionDetail(ctx, "s2")
	if err != nil {
		t.Fatal(err)
	}
	if detail.TotalTools != 2 {
		t.Errorf("TotalTools = %d, want 2 after append", detail.TotalTools)
	}

	agg, err := f.store.Aggregate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if agg.TotalSessions != 2 || agg.TotalActions != 3 {
		t.Errorf("aggregate sessions, actions = %d, %d; want 2, 3", agg.TotalSessions, agg.TotalActions)
	}
	if diff := cmp.Diff([]string{"alpha", "beta"}, agg.Projects); diff != "" {
		t.Errorf("Projects mismatch (-want +got):\n%s", diff)
	}
}

func TestRebuild_DeletionRemovesEverywhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeLog("-Users-me-projects-alpha", "keep", prompt("Keep me"), read("t1", "/a.go"))
	gone := f.writeLog("-Users-me-projects-alpha", "gone", prompt("Delete me"), bash("t2", "git push"))
	r := f.rebuilder()
	f.rebuild(r)

	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}
	stats := f.rebuild(r)
	if stats.Removed != 1 || stats.TotalCached != 1 {
		t.Errorf("stats = %+v, want one removed and one cached", stats)
	}

	if _, err := f.store.SessionDetail(ctx, "gone"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("detail err = %v, want ErrNotFound", err)
	}
	sums, err := f.store.Summaries(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 || sums[0].SessionID != "keep" {
		t.Errorf("summaries = %+v", sums)
	}
	agg, err := f.store.Aggregate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range agg.Tools.All {
		if e.Key == "Bash" {
			t.Error("deleted session's tools still in aggregate")
		}
	}
	if agg.TotalSessions != 1 {
		t.Errorf("TotalSessions = %d, want 1", agg.TotalSessions)
	}
}

func TestRebuild_LastFileDeletedClearsAggregate(t *testing.T) {
	f := newFixture(t)
	path := f.writeLog("p", "only", prompt("Only session"))
	r := f.rebuilder()
	f.rebuild(r)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	f.rebuild(r)
	if _, err := f.store.Aggregate(context.Background()); !errors.Is(err, store.ErrNotBuilt) {
		t.Errorf("Aggregate err = %v, want ErrNotBuilt", err)
	}
}

func TestRebuild_FileErrorsCounted(t *testing.T) {
	f := newFixture(t)
	f.writeLog("p", "small", prompt("Tiny"))
	f.writeLog("p", "big", prompt(strings.Repeat("x", 4096)))
	r := f.rebuilderWith(source.NewAssembler(source.Options{MaxFileSize: 1024}))

	stats := f.rebuild(r)
	if stats.Errors != 1 || stats.Parsed != 1 || stats.TotalCached != 1 {
		t.Errorf("stats = %+v, want one error and one parsed", stats)
	}

	// The failed file is untracked, so it is retried every cycle.
	again := f.rebuild(r)
	if again.Stale != 1 || again.Errors != 1 {
		t.Errorf("again = %+v, want the oversized file retried", again)
	}
}

func TestRebuild_UnreadableFileKeepsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	locked := f.writeLog("p", "locked", prompt("Hold on"), read("t1", "/x.go"))
	f.rebuild(f.rebuilder())

	failLocked := func(path string) (os.FileInfo, error) {
		if path == locked {
			return nil, os.ErrPermission
		}
		return os.Stat(path)
	}
	stats := f.rebuild(f.rebuilder(WithStat(failLocked)))
	if stats.Removed != 0 || stats.Stale != 0 {
		t.Errorf("stats = %+v, want nothing removed or stale", stats)
	}
	if _, err := f.store.SessionDetail(ctx, "locked"); err != nil {
		t.Errorf("cached session lost on stat failure: %v", err)
	}
}

func TestRebuild_EmptySessionTracked(t *testing.T) {
	f := newFixture(t)
	f.writeLog("p", "empty", `{"type":"system","subtype":"turn_duration","durationMs":5}`)
	r := f.rebuilder()

	stats := f.rebuild(r)
	if stats.Parsed != 1 || stats.Empty != 1 || stats.TotalCached != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if again := f.rebuild(r); again.Stale != 0 {
		t.Errorf("empty file re-parsed: %+v", again)
	}
	if _, err := f.store.Aggregate(context.Background()); !errors.Is(err, store.ErrNotBuilt) {
		t.Errorf("Aggregate err = %v, want ErrNotBuilt", err)
	}
}

func TestRebuild_AggregateMatchesSummaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeLog("a", "s1", prompt("One"), bash("t1", "ls"), read("t2", "/a.go"))
	f.writeLog("a", "s2", prompt("Two"), read("t3", "/b.py"), read("t4", "/c.py"))
	f.writeLog("b", "s3", prompt("Three"), bash("t5", "npm test"))

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.rebuild(f.rebuilder(WithClock(func() time.Time { return fixed })))

	sums, err := f.store.Summaries(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	agg, err := f.store.Aggregate(ctx)
	if err != nil {
		t.Fatal(err)
	}

	want := BuildAggregate(sums, fixed, time.UTC)
	if diff := cmp.Diff(&want, agg); diff != "" {
		t.Errorf("stored aggregate differs from recompute (-want +got):\n%s", diff)
	}
	if countOf(agg.Tools.Last1d, "Read") != 3 {
		t.Errorf("Read in last day = %d, want 3", countOf(agg.Tools.Last1d, "Read"))
	}
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = fh.Close() }()
	if _, err := fh.WriteString(line + "\n"); err != nil {
		t.Fatal(err)
	}
}

func TestRebuild_StoreFailureKeepsAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeLog("p", "s1", prompt("First"), bash("t1", "go test ./..."))
	r := f.rebuilder()
	f.rebuild(r)

	// A second connection rejects the next session's detail row.
	db, err := sql.Open("sqlite", f.dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Exec(`CREATE TRIGGER reject_s2 BEFORE INSERT ON session_details
		WHEN NEW.session_id = 's2' BEGIN SELECT RAISE(ABORT, 'boom'); END`); err != nil {
		t.Fatal(err)
	}

	f.writeLog("p", "s2", prompt("Second"), read("t2", "/x.go"))
	if _, err := r.Rebuild(ctx); err == nil || !strings.Contains(err.Error(), "s2") {
		t.Fatalf("Rebuild err = %v, want write failure for s2", err)
	}

	if n, err := f.store.SessionCount(ctx); err != nil || n != 1 {
		t.Errorf("SessionCount = %d, %v; want 1", n, err)
	}
	tracked, err := f.store.TrackedFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracked) != 1 {
		t.Errorf("tracked files = %d, want 1 after rollback", len(tracked))
	}
	agg, err := f.store.Aggregate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if agg.TotalSessions != 1 {
		t.Errorf("aggregate TotalSessions = %d, want 1", agg.TotalSessions)
	}

	// Once the store accepts writes again the file is still stale.
	if _, err := db.Exec(`DROP TRIGGER reject_s2`); err != nil {
		t.Fatal(err)
	}
	stats := f.rebuild(r)
	if stats.Stale != 1 || stats.TotalCached != 2 {
		t.Errorf("stats after recovery = %+v, want one stale and two cached", stats)
	}
}

func TestRebuild_SymlinkedProjectIsScanned(t *testing.T) {
	f := newFixture(t)
	projects := source.ProjectsDir(f.claudeDir)
	f.writeLog("-Users-me-projects-alpha", "s1", prompt("Linked"), read("t1", "/a.go"))
	r := f.rebuilder()
	f.rebuild(r)

	// Move the project elsewhere and link it back under the same name.
	target := filepath.Join(t.TempDir(), "alpha")
	if err := os.Rename(filepath.Join(projects, "-Users-me-projects-alpha"), target); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(projects, "-Users-me-projects-alpha")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	stats := f.rebuild(r)
	if stats.FilesScanned != 1 || stats.Stale != 0 || stats.Removed != 0 || stats.TotalCached != 1 {
		t.Errorf("stats = %+v, want the linked session kept as current", stats)
	}
}

func TestRebuild_UnreadableProjectKeepsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	projects := source.ProjectsDir(f.claudeDir)
	f.writeLog("-Users-me-projects-alpha", "s1", prompt("Offline"), read("t1", "/a.go"))
	f.writeLog("-Users-me-projects-beta", "s2", prompt("Local"), read("t2", "/b.go"))
	r := f.rebuilder()
	f.rebuild(r)

	// alpha now points at a target that is not there.
	alpha := filepath.Join(projects, "-Users-me-projects-alpha")
	if err := os.RemoveAll(alpha); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(t.TempDir(), "offline"), alpha); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	stats := f.rebuild(r)
	if stats.FilesScanned != 1 || stats.Removed != 0 || stats.TotalCached != 2 {
		t.Errorf("stats = %+v, want alpha's session kept", stats)
	}
	if _, err := f.store.SessionDetail(ctx, "s1"); err != nil {
		t.Errorf("SessionDetail(s1) = %v, want cached detail", err)
	}
}
