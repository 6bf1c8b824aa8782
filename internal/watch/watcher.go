package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mdpeek/mdpeek/internal/store"
)

// debounceWindow coalesces the burst of Write events an editor produces
// on a single save into one notification. Duplicate notifications are
// harmless downstream (reload is idempotent), so the window can stay
// short.
const debounceWindow = 75 * time.Millisecond

// IsMarkdown reports whether path has a markdown extension.
func IsMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// Watcher subscribes to filesystem events under a root directory,
// keeps the store current, and emits one root-relative path per
// debounced change on Changes.
type Watcher struct {
	root    string
	only    string // root-relative filter; "" means every markdown file
	store   *store.Store
	fw      *fsnotify.Watcher
	changes chan string

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New establishes the watch subscription for root and every directory
// below it. A failure here is fatal for the command: without a
// subscription there is nothing to serve live. only, when non-empty,
// restricts events to that single root-relative file (serve mode).
func New(root, only string, st *store.Store) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		root:    root,
		only:    only,
		store:   st,
		fw:      fw,
		changes: make(chan string, 64),
		pending: make(map[string]*time.Timer),
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}

	return w, nil
}

// Changes returns the stream of debounced change notifications. Each
// value is the root-relative path of a file whose store entry was just
// refreshed.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Scan seeds the store with the current content of every matching file
// under the root. A file that cannot be read is logged and skipped; only
// a failure to walk the root itself is an error.
func (w *Watcher) Scan() error {
	count := 0
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsMarkdown(path) {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if w.only != "" && rel != w.only {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("WATCH: scan skipping %s: %v", rel, err)
			return nil
		}
		w.store.Put(rel, data)
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.root, err)
	}
	log.Printf("WATCH: %d file(s) under %s", count, w.root)
	return nil
}

// Run consumes native events until ctx is done. Individual event
// failures never terminate the loop.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("WATCH: backend error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	// New subdirectories must be added to the subscription; fsnotify
	// does not recurse on its own.
	if event.Op&fsnotify.Create != 0 {
		if stat, err := os.Stat(event.Name); err == nil && stat.IsDir() {
			if err := w.fw.Add(event.Name); err != nil {
				log.Printf("WATCH: cannot watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	if !IsMarkdown(event.Name) {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if w.only != "" && rel != w.only {
		return
	}

	if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		w.schedule(rel, event.Name)
	}
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		// Entry stays in the store; deletion events are not reliable
		// on every platform, so stale beats missing.
		log.Printf("WATCH: %s removed, keeping last-known content", rel)
	}
}

// schedule arms (or re-arms) the debounce timer for one path. When the
// timer fires the file is re-read and exactly one notification emitted.
func (w *Watcher) schedule(rel, abs string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[rel]; ok {
		t.Reset(debounceWindow)
		return
	}
	w.pending[rel] = time.AfterFunc(debounceWindow, func() {
		// The re-read happens under the lock: two debounce cycles for
		// one path must not overlap, or a slow stale read could land
		// in the store after a newer one.
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.pending, rel)
		w.refresh(rel, abs)
	})
}

func (w *Watcher) refresh(rel, abs string) {
	data, err := os.ReadFile(abs)
	if err != nil {
		// Transient lock or deletion mid-event. Suppress the
		// notification rather than pushing a stale render.
		log.Printf("WATCH: read %s failed, suppressing reload: %v", rel, err)
		return
	}
	w.store.Put(rel, data)

	select {
	case w.changes <- rel:
	default:
		log.Printf("WATCH: notification queue full, dropping %s", rel)
	}
}

// Close releases the watch subscription and any pending timers.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for rel, t := range w.pending {
		t.Stop()
		delete(w.pending, rel)
	}
	w.mu.Unlock()
	return w.fw.Close()
}
