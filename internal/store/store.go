package store

import (
	"sort"
	"sync"
	"time"
)

// WatchedFile holds the last-known content of one markdown file.
type WatchedFile struct {
	Path string // root-relative, forward slashes
	Raw  []byte
	Mod  time.Time
}

// Store maps root-relative paths to their last-read content. It is the
// only state shared between the watcher (writes) and the HTTP handlers
// (reads), so every operation takes the lock. Entries are never removed:
// a file deleted on disk leaves a stale entry, since not every watch
// backend reports deletions reliably.
type Store struct {
	mu    sync.RWMutex
	files map[string]*WatchedFile
}

func New() *Store {
	return &Store{files: make(map[string]*WatchedFile)}
}

// Get returns the last-read content for path.
func (s *Store) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[path]
	if !ok {
		return nil, false
	}
	return f.Raw, true
}

// Put records raw as the current content for path, overwriting any
// previous entry.
func (s *Store) Put(path string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = &WatchedFile{
		Path: path,
		Raw:  raw,
		Mod:  time.Now(),
	}
}

// List returns all known paths, sorted. Ordering is cosmetic — the
// sidebar wants a stable listing.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
