package refs

import (
	"errors"
	"testing"

	"github.com/stashvcs/stash/internal/cas"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpdateAndLookup(t *testing.T) {
	s := openTestStore(t)
	h := cas.Sum([]byte("c1"))

	if err := s.Update("refs/heads/main", h, &cas.Hash{}, "commit: one", true); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := s.Lookup("refs/heads/main")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got != h {
		t.Errorf("Lookup = %s, want %s", got, h)
	}

	if _, err := s.Lookup("refs/heads/other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCompareAndSwapLosesRace(t *testing.T) {
	s := openTestStore(t)
	h1 := cas.Sum([]byte("c1"))
	h2 := cas.Sum([]byte("c2"))

	if err := s.Update("refs/stash", h1, &cas.Hash{}, "push", true); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// A writer that still expects the ref to be unborn must lose.
	err := s.Update("refs/stash", h2, &cas.Hash{}, "push", true)
	if !errors.Is(err, ErrStale) {
		t.Errorf("expected ErrStale, got %v", err)
	}

	// The ref still points at the winner.
	got, err := s.Lookup("refs/stash")
	if err != nil || got != h1 {
		t.Errorf("Lookup after lost race = %s, %v; want %s", got, err, h1)
	}
}

func TestReflogOrdinals(t *testing.T) {
	s := openTestStore(t)
	e1 := cas.Sum([]byte("entry one"))
	e2 := cas.Sum([]byte("entry two"))

	if err := s.Update("refs/stash", e1, &cas.Hash{}, "first", true); err != nil {
		t.Fatalf("push e1: %v", err)
	}
	if err := s.Update("refs/stash", e2, &e1, "second", true); err != nil {
		t.Fatalf("push e2: %v", err)
	}

	at0, err := s.LogAt("refs/stash", 0)
	if err != nil || at0.New != e2 {
		t.Errorf("log@{0} = %s, %v; want %s", at0.New, err, e2)
	}
	at1, err := s.LogAt("refs/stash", 1)
	if err != nil || at1.New != e1 {
		t.Errorf("log@{1} = %s, %v; want %s", at1.New, err, e1)
	}
	if _, err := s.LogAt("refs/stash", 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("log@{2} should not exist, got %v", err)
	}
}

func TestDropLogEntryShiftsOrdinals(t *testing.T) {
	s := openTestStore(t)
	e1 := cas.Sum([]byte("one"))
	e2 := cas.Sum([]byte("two"))

	if err := s.Update("refs/stash", e1, &cas.Hash{}, "first", true); err != nil {
		t.Fatalf("push e1: %v", err)
	}
	if err := s.Update("refs/stash", e2, &e1, "second", true); err != nil {
		t.Fatalf("push e2: %v", err)
	}

	remaining, err := s.DropLogEntry("refs/stash", 0)
	if err != nil {
		t.Fatalf("DropLogEntry failed: %v", err)
	}
	if remaining != 1 {
		t.Errorf("remaining = %d, want 1", remaining)
	}

	// Former ordinal 1 becomes ordinal 0, and the ref follows.
	at0, err := s.LogAt("refs/stash", 0)
	if err != nil || at0.New != e1 {
		t.Errorf("log@{0} after drop = %s, %v; want %s", at0.New, err, e1)
	}
	tip, err := s.Lookup("refs/stash")
	if err != nil || tip != e1 {
		t.Errorf("ref after drop = %s, %v; want %s", tip, err, e1)
	}
}

func TestDropLastEntryRemovesRef(t *testing.T) {
	s := openTestStore(t)
	e1 := cas.Sum([]byte("only"))

	if err := s.Update("refs/stash", e1, &cas.Hash{}, "only", true); err != nil {
		t.Fatalf("push: %v", err)
	}

	remaining, err := s.DropLogEntry("refs/stash", 0)
	if err != nil {
		t.Fatalf("DropLogEntry failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
	if s.Exists("refs/stash") {
		t.Error("ref still exists after its reflog emptied")
	}

	entries, err := s.Log("refs/stash")
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty log, got %d entries", len(entries))
	}
}

func TestDeleteAbsentRefIsNotAnError(t *testing.T) {
	s := openTestStore(t)
	if err := s.Delete("refs/stash", nil); err != nil {
		t.Errorf("Delete of absent ref failed: %v", err)
	}
}

func TestHead(t *testing.T) {
	s := openTestStore(t)

	branch, err := s.Head()
	if err != nil || branch != "" {
		t.Errorf("Head before SetHead = %q, %v", branch, err)
	}

	if err := s.SetHead("main"); err != nil {
		t.Fatalf("SetHead failed: %v", err)
	}
	branch, err = s.Head()
	if err != nil || branch != "main" {
		t.Errorf("Head = %q, %v; want main", branch, err)
	}

	h := cas.Sum([]byte("head commit"))
	if err := s.Update("refs/heads/main", h, &cas.Hash{}, "commit", true); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err := s.HeadCommit()
	if err != nil || got != h {
		t.Errorf("HeadCommit = %s, %v; want %s", got, err, h)
	}
}
