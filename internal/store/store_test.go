package store

import (
	"fmt"
	"sync"
	"testing"
)

func TestGetMissing(t *testing.T) {
	s := New()
	if _, ok := s.Get("nope.md"); ok {
		t.Fatal("expected miss for unknown path")
	}
}

func TestPutOverwrites(t *testing.T) {
	s := New()
	s.Put("a.md", []byte("one"))
	s.Put("a.md", []byte("two"))

	raw, ok := s.Get("a.md")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(raw) != "two" {
		t.Fatalf("expected latest content, got %q", raw)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Len())
	}
}

func TestListSorted(t *testing.T) {
	s := New()
	for _, p := range []string{"z.md", "a.md", "docs/m.md"} {
		s.Put(p, []byte("x"))
	}

	got := s.List()
	want := []string{"a.md", "docs/m.md", "z.md"}
	if len(got) != len(want) {
		t.Fatalf("expected %d paths, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Put(fmt.Sprintf("f%d.md", n), []byte(fmt.Sprintf("rev%d", j)))
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Get(fmt.Sprintf("f%d.md", n))
				s.List()
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 16 {
		t.Fatalf("expected 16 entries, got %d", s.Len())
	}
}
