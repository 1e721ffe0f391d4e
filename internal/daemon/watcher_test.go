package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startWatcher(t *testing.T, root string) <-chan struct{} {
	t.Helper()
	changes := make(chan struct{}, 8)
	w, err := NewWatcher(root, 50*time.Millisecond, func() { changes <- struct{}{} }, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	return changes
}

func waitChange(t *testing.T, changes <-chan struct{}) {
	t.Helper()
	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestWatcher_SessionLogWrite(t *testing.T) {
	root := t.TempDir()
	changes := startWatcher(t, root)

	path := filepath.Join(root, "sess.jsonl")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	waitChange(t, changes)
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	changes := startWatcher(t, root)

	sub := filepath.Join(root, "-home-dev-app")
	if err := os.Mkdir(sub, 0o750); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to pick up the new directory.
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(sub, "sess.jsonl"), []byte("{}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitChange(t, changes)
}

func TestWatcher_MissingRoot(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "absent"), time.Second, func() {}, nil); err == nil {
		t.Fatal("expected error for missing root")
	}
}
