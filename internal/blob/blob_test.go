package blob

import "testing"

func TestHashIsStableAndContentAddressed(t *testing.T) {
	a := Hash([]byte("hello"))
	b := Hash([]byte("hello"))
	c := Hash([]byte("world"))
	if a != b {
		t.Fatalf("expected identical content to hash identically, got %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("expected distinct content to hash distinctly")
	}
}

func TestFSStorePutGetIsWriteOnceIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	h1, err := s.Put([]byte("payload"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	h2, err := s.Put([]byte("payload")) // idempotent re-write
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected the same hash for identical content, got %s vs %s", h1, h2)
	}

	if !s.Has(h1) {
		t.Fatal("expected Has to report true after Put")
	}
	got, err := s.Get(h1)
	if err != nil || string(got) != "payload" {
		t.Fatalf("Get returned %q, err=%v", got, err)
	}
}

func TestFSStoreGetMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFSStore(dir)
	if s.Has(Hash([]byte("nope"))) {
		t.Fatal("expected Has to report false for unwritten content")
	}
	_, err := s.Get(Hash([]byte("nope")))
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStorePutGet(t *testing.T) {
	s := NewMemStore()
	h, err := s.Put([]byte("data"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(h)
	if err != nil || string(got) != "data" {
		t.Fatalf("Get returned %q, err=%v", got, err)
	}
	if _, err := s.Get(Hash([]byte("missing"))); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
