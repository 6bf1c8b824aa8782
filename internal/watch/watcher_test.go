package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdpeek/mdpeek/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// waitChange blocks until a notification arrives or the timeout hits.
func waitChange(t *testing.T, ch <-chan string, timeout time.Duration) (string, bool) {
	t.Helper()
	select {
	case rel := <-ch:
		return rel, true
	case <-time.After(timeout):
		return "", false
	}
}

func TestNewMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), "", store.New())
	if err == nil {
		t.Fatal("expected error for nonexistent root")
	}
}

func TestScanSeedsStore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "# A")
	writeFile(t, filepath.Join(dir, "sub", "b.md"), "# B")
	writeFile(t, filepath.Join(dir, "note.txt"), "not markdown")

	st := store.New()
	w, err := New(dir, "", st)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Scan(); err != nil {
		t.Fatal(err)
	}

	if st.Len() != 2 {
		t.Fatalf("expected 2 seeded files, got %d: %v", st.Len(), st.List())
	}
	raw, ok := st.Get("a.md")
	if !ok || string(raw) != "# A" {
		t.Fatalf("a.md not seeded, got %q ok=%v", raw, ok)
	}
	if _, ok := st.Get("sub/b.md"); !ok {
		t.Fatal("sub/b.md not seeded")
	}
}

func TestChangeUpdatesStoreAndNotifies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	writeFile(t, path, "# A")

	st := store.New()
	w, err := New(dir, "", st)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Scan(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeFile(t, path, "# A!")

	rel, ok := waitChange(t, w.Changes(), 2*time.Second)
	if !ok {
		t.Fatal("no change notification within timeout")
	}
	if rel != "a.md" {
		t.Fatalf("expected notification for a.md, got %q", rel)
	}

	raw, _ := st.Get("a.md")
	if string(raw) != "# A!" {
		t.Fatalf("store not refreshed, got %q", raw)
	}

	// A single save burst coalesces into exactly one notification.
	if extra, ok := waitChange(t, w.Changes(), 300*time.Millisecond); ok {
		t.Fatalf("unexpected extra notification for %q", extra)
	}
}

func TestReadFailureSuppressesNotification(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	writeFile(t, path, "# A")

	st := store.New()
	w, err := New(dir, "", st)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Scan(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Delete inside the debounce window: the re-read fails, so no
	// notification may go out and the store keeps the seeded content.
	writeFile(t, path, "# A!")
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	if rel, ok := waitChange(t, w.Changes(), 500*time.Millisecond); ok {
		t.Fatalf("unexpected notification for %q after failed read", rel)
	}
	raw, ok := st.Get("a.md")
	if !ok || string(raw) != "# A" {
		t.Fatalf("store should keep pre-edit content, got %q ok=%v", raw, ok)
	}
}

func TestRemovedFileStaysServable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	writeFile(t, path, "# A")

	st := store.New()
	w, err := New(dir, "", st)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Scan(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	// Deletion emits no reload and must not crash the loop; the entry
	// goes stale instead of vanishing.
	if rel, ok := waitChange(t, w.Changes(), 300*time.Millisecond); ok {
		t.Fatalf("unexpected notification for %q after removal", rel)
	}
	raw, ok := st.Get("a.md")
	if !ok || string(raw) != "# A" {
		t.Fatalf("stale entry lost, got %q ok=%v", raw, ok)
	}
}

func TestRapidRewritesConvergeToLatest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	writeFile(t, path, "# rev0")

	st := store.New()
	w, err := New(dir, "", st)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Scan(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 1; i <= 20; i++ {
		writeFile(t, path, fmt.Sprintf("# rev%d", i))
	}
	writeFile(t, path, "# final")

	// Drain until the burst settles; refreshes are serialized per
	// path, so the last write wins regardless of how many
	// notifications the burst collapsed into.
	for {
		if _, ok := waitChange(t, w.Changes(), 400*time.Millisecond); !ok {
			break
		}
	}
	raw, _ := st.Get("a.md")
	if string(raw) != "# final" {
		t.Fatalf("store regressed behind latest write, got %q", raw)
	}
}

func TestNonMarkdownIgnored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "# A")

	st := store.New()
	w, err := New(dir, "", st)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeFile(t, filepath.Join(dir, "note.txt"), "changed")

	if rel, ok := waitChange(t, w.Changes(), 300*time.Millisecond); ok {
		t.Fatalf("unexpected notification for %q", rel)
	}
}

func TestOnlyFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "# A")
	writeFile(t, filepath.Join(dir, "b.md"), "# B")

	st := store.New()
	w, err := New(dir, "a.md", st)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Scan(); err != nil {
		t.Fatal(err)
	}
	if st.Len() != 1 {
		t.Fatalf("only filter should seed 1 file, got %d", st.Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeFile(t, filepath.Join(dir, "b.md"), "# B!")
	if rel, ok := waitChange(t, w.Changes(), 300*time.Millisecond); ok {
		t.Fatalf("unexpected notification for %q", rel)
	}

	writeFile(t, filepath.Join(dir, "a.md"), "# A!")
	rel, ok := waitChange(t, w.Changes(), 2*time.Second)
	if !ok || rel != "a.md" {
		t.Fatalf("expected notification for a.md, got %q ok=%v", rel, ok)
	}
}

func TestNewSubdirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "# A")

	st := store.New()
	w, err := New(dir, "", st)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to pick up the new directory before
	// writing into it.
	time.Sleep(200 * time.Millisecond)

	writeFile(t, filepath.Join(sub, "new.md"), "# New")

	rel, ok := waitChange(t, w.Changes(), 2*time.Second)
	if !ok {
		t.Fatal("no notification for file in new subdirectory")
	}
	if rel != "sub/new.md" {
		t.Fatalf("expected sub/new.md, got %q", rel)
	}
	if raw, ok := st.Get("sub/new.md"); !ok || string(raw) != "# New" {
		t.Fatalf("store missing new file, got %q ok=%v", raw, ok)
	}
}

func TestIsMarkdown(t *testing.T) {
	for path, want := range map[string]bool{
		"a.md":       true,
		"B.MD":       true,
		"c.markdown": true,
		"d.txt":      false,
		"md":         false,
	} {
		if got := IsMarkdown(path); got != want {
			t.Errorf("IsMarkdown(%q) = %v, want %v", path, got, want)
		}
	}
}
