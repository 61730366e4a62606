package merge

import (
	"sort"
	"testing"
)

func TestRecordStoreRoundTrip(t *testing.T) {
	rs := NewRecordStore(t.TempDir())
	if rs.Exists() {
		t.Fatal("fresh store must have no record")
	}
	if r, err := rs.Load(); err != nil || r != nil {
		t.Fatalf("Load on fresh store = (%v, %v), want (nil, nil)", r, err)
	}

	rec := NewRecord("aaa", "bbb", "ccc", []string{"a.txt", "b.txt"})
	if err := rs.Save(rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !rs.Exists() {
		t.Fatal("Exists must report true after Save")
	}

	loaded, err := rs.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Ancestor != "aaa" || loaded.Current != "bbb" || loaded.Incoming != "ccc" {
		t.Errorf("commit ids not round-tripped: %+v", loaded)
	}

	unresolved := loaded.Unresolved()
	sort.Strings(unresolved)
	if len(unresolved) != 2 || unresolved[0] != "a.txt" || unresolved[1] != "b.txt" {
		t.Errorf("Unresolved = %v, want [a.txt b.txt]", unresolved)
	}

	loaded.MarkResolved("a.txt")
	if got := loaded.Unresolved(); len(got) != 1 || got[0] != "b.txt" {
		t.Errorf("Unresolved after MarkResolved = %v, want [b.txt]", got)
	}
	if loaded.Files["a.txt"].ResolvedAt == nil {
		t.Error("MarkResolved must stamp a resolution time")
	}

	if err := rs.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if rs.Exists() {
		t.Error("record still present after Delete")
	}
	if err := rs.Delete(); err != nil {
		t.Errorf("deleting an absent record must succeed, got %v", err)
	}
}
