package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stashvcs/stash/internal/cas"
	"github.com/stashvcs/stash/internal/tree"
)

func testIndexEntry(path, content string) Entry {
	data := []byte(content)
	return Entry{
		Path:    path,
		Blob:    cas.Sum(data),
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: time.Unix(1640995200, 0),
	}
}

func TestLoadMissingIndexIsEmpty(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "index"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Len() != 0 {
		t.Errorf("expected empty index, got %d entries", f.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	f.Set(testIndexEntry("b.txt", "bee"))
	f.Set(testIndexEntry("a.txt", "ay"))
	if err := f.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", loaded.Len())
	}

	entries := loaded.Entries()
	if entries[0].Path != "a.txt" || entries[1].Path != "b.txt" {
		t.Errorf("entries not sorted: %s, %s", entries[0].Path, entries[1].Path)
	}
	if got := loaded.Get("b.txt"); got == nil || got.Blob != cas.Sum([]byte("bee")) {
		t.Error("Get returned wrong entry after reload")
	}
}

func TestCorruptIndexRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	f.Set(testIndexEntry("a.txt", "data"))
	if err := f.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read raw index: %v", err)
	}
	data[len(data)/2] ^= 0xff
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write corrupted index: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load accepted a corrupted index")
	}
}

func TestWriteTreeReadTree(t *testing.T) {
	store := cas.NewMemoryCAS()
	path := filepath.Join(t.TempDir(), "index")

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		content := fmt.Sprintf("content %d", i)
		e := testIndexEntry(fmt.Sprintf("f%d.txt", i), content)
		if err := store.Put(e.Blob, []byte(content)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		f.Set(e)
	}

	ref, err := f.WriteTree(tree.NewBuilder(store))
	if err != nil {
		t.Fatalf("WriteTree failed: %v", err)
	}
	if ref.Count != 5 {
		t.Errorf("tree count = %d, want 5", ref.Count)
	}

	other, err := Load(filepath.Join(t.TempDir(), "index"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := other.ReadTree(tree.NewLoader(store), ref); err != nil {
		t.Fatalf("ReadTree failed: %v", err)
	}
	if other.Len() != 5 {
		t.Errorf("expected 5 entries after ReadTree, got %d", other.Len())
	}
	if got := other.Get("f3.txt"); got == nil || got.Blob != cas.Sum([]byte("content 3")) {
		t.Error("ReadTree lost an entry")
	}
}

func TestLockedSavesOnSuccessOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index")

	err := Locked(path, func(f *File) error {
		f.Set(testIndexEntry("a.txt", "data"))
		return nil
	})
	if err != nil {
		t.Fatalf("Locked failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", loaded.Len())
	}

	failure := fmt.Errorf("boom")
	err = Locked(path, func(f *File) error {
		f.Remove("a.txt")
		return failure
	})
	if err != failure {
		t.Fatalf("Locked returned %v, want the callback error", err)
	}

	loaded, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != 1 {
		t.Error("failed callback still mutated the index on disk")
	}
}

func TestDefaultPathHonorsOverride(t *testing.T) {
	dir := t.TempDir()

	got := DefaultPath(dir)
	if !strings.HasPrefix(got, dir) {
		t.Errorf("DefaultPath = %q, want a path under %q", got, dir)
	}

	t.Setenv(EnvIndexFile, "/tmp/elsewhere-index")
	if got := DefaultPath(dir); got != "/tmp/elsewhere-index" {
		t.Errorf("DefaultPath with override = %q", got)
	}
}
