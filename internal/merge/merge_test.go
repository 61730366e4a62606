package merge

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stashvcs/stash/internal/cas"
	"github.com/stashvcs/stash/internal/tree"
)

var testLabels = Labels{
	Ancestor: "Version stash was based on",
	Current:  "Updated upstream",
	Incoming: "Stashed changes",
}

// buildTree stores the given path->content files and returns the tree ref.
func buildTree(t *testing.T, store cas.CAS, files map[string]string) tree.Ref {
	t.Helper()
	var entries []tree.Entry
	for path, content := range files {
		data := []byte(content)
		h := cas.Sum(data)
		if err := store.Put(h, data); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		entries = append(entries, tree.Entry{Path: path, Blob: h, Mode: 0o644, Size: int64(len(data))})
	}
	ref, err := tree.NewBuilder(store).Build(entries)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return ref
}

func treeContents(t *testing.T, store cas.CAS, ref tree.Ref) map[string]string {
	t.Helper()
	out := make(map[string]string)
	if ref.Count == 0 {
		return out
	}
	entries, err := tree.NewLoader(store).ListAll(ref)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	for _, e := range entries {
		data, err := store.Get(e.Blob)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		out[e.Path] = string(data)
	}
	return out
}

func TestMergeTreesOneSidedChanges(t *testing.T) {
	store := cas.NewMemoryCAS()
	base := buildTree(t, store, map[string]string{
		"a.txt": "one\n",
		"b.txt": "two\n",
		"c.txt": "three\n",
	})
	ours := buildTree(t, store, map[string]string{
		"a.txt": "one changed\n",
		"b.txt": "two\n",
		"c.txt": "three\n",
	})
	theirs := buildTree(t, store, map[string]string{
		"a.txt": "one\n",
		"b.txt": "two\n",
		"d.txt": "four\n",
	})

	res, err := NewMerger(store, testLabels).MergeTrees(base, ours, theirs)
	if err != nil {
		t.Fatalf("MergeTrees failed: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected clean merge, got conflicts %v", res.Conflicts)
	}

	got := treeContents(t, store, res.Tree)
	want := map[string]string{
		"a.txt": "one changed\n",
		"b.txt": "two\n",
		"d.txt": "four\n",
	}
	if len(got) != len(want) {
		t.Fatalf("merged tree has %d files, want %d: %v", len(got), len(want), got)
	}
	for path, content := range want {
		if got[path] != content {
			t.Errorf("%s = %q, want %q", path, got[path], content)
		}
	}
}

func TestMergeTreesIdenticalBothSides(t *testing.T) {
	store := cas.NewMemoryCAS()
	base := buildTree(t, store, map[string]string{"a.txt": "old\n"})
	side := buildTree(t, store, map[string]string{"a.txt": "new\n", "added.txt": "same\n"})

	res, err := NewMerger(store, testLabels).MergeTrees(base, side, side)
	if err != nil {
		t.Fatalf("MergeTrees failed: %v", err)
	}
	if !res.Clean {
		t.Fatalf("identical sides must merge clean, got conflicts %v", res.Conflicts)
	}
	got := treeContents(t, store, res.Tree)
	if got["a.txt"] != "new\n" || got["added.txt"] != "same\n" {
		t.Errorf("unexpected merged contents: %v", got)
	}
}

func TestMergeTreesContentConflict(t *testing.T) {
	store := cas.NewMemoryCAS()
	base := buildTree(t, store, map[string]string{"a.txt": "line\n"})
	ours := buildTree(t, store, map[string]string{"a.txt": "ours\n"})
	theirs := buildTree(t, store, map[string]string{"a.txt": "theirs\n"})

	res, err := NewMerger(store, testLabels).MergeTrees(base, ours, theirs)
	if err != nil {
		t.Fatalf("MergeTrees failed: %v", err)
	}
	if res.Clean {
		t.Fatal("expected conflicted merge")
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0] != "a.txt" {
		t.Fatalf("Conflicts = %v, want [a.txt]", res.Conflicts)
	}

	var fr *FileResult
	for i := range res.Files {
		if res.Files[i].Path == "a.txt" {
			fr = &res.Files[i]
		}
	}
	if fr == nil || !fr.Conflicted {
		t.Fatal("a.txt missing or not marked conflicted in Files")
	}
	text := string(fr.Content)
	for _, marker := range []string{
		"<<<<<<< Updated upstream\n",
		"ours\n",
		"||||||| Version stash was based on\n",
		"line\n",
		"=======\n",
		"theirs\n",
		">>>>>>> Stashed changes\n",
	} {
		if !strings.Contains(text, marker) {
			t.Errorf("conflict content missing %q:\n%s", marker, text)
		}
	}
}

func TestMergeTreesModifyDeleteConflict(t *testing.T) {
	store := cas.NewMemoryCAS()
	base := buildTree(t, store, map[string]string{"a.txt": "original\n"})
	ours := buildTree(t, store, map[string]string{"a.txt": "modified\n"})
	theirs := buildTree(t, store, nil)

	res, err := NewMerger(store, testLabels).MergeTrees(base, ours, theirs)
	if err != nil {
		t.Fatalf("MergeTrees failed: %v", err)
	}
	if res.Clean {
		t.Fatal("modify/delete must conflict")
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0] != "a.txt" {
		t.Fatalf("Conflicts = %v, want [a.txt]", res.Conflicts)
	}
	fr := res.Files[0]
	if fr.Entry == nil {
		t.Fatal("surviving side's entry must be kept")
	}
	if !bytes.Equal(fr.Content, []byte("modified\n")) {
		t.Errorf("kept content = %q, want the modified version", fr.Content)
	}
}

func TestMergeTreesBothDeleted(t *testing.T) {
	store := cas.NewMemoryCAS()
	base := buildTree(t, store, map[string]string{"a.txt": "gone\n", "b.txt": "stays\n"})
	side := buildTree(t, store, map[string]string{"b.txt": "stays\n"})

	res, err := NewMerger(store, testLabels).MergeTrees(base, side, side)
	if err != nil {
		t.Fatalf("MergeTrees failed: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected clean merge, got conflicts %v", res.Conflicts)
	}
	got := treeContents(t, store, res.Tree)
	if _, ok := got["a.txt"]; ok {
		t.Error("a.txt deleted on both sides should not survive")
	}
	if got["b.txt"] != "stays\n" {
		t.Errorf("b.txt = %q, want %q", got["b.txt"], "stays\n")
	}
}

func TestMergeTreesBothAddedSameContent(t *testing.T) {
	store := cas.NewMemoryCAS()
	base := buildTree(t, store, nil)
	side := buildTree(t, store, map[string]string{"new.txt": "fresh\n"})

	res, err := NewMerger(store, testLabels).MergeTrees(base, side, side)
	if err != nil {
		t.Fatalf("MergeTrees failed: %v", err)
	}
	if !res.Clean {
		t.Fatalf("expected clean merge, got conflicts %v", res.Conflicts)
	}
	if got := treeContents(t, store, res.Tree); got["new.txt"] != "fresh\n" {
		t.Errorf("new.txt = %q, want %q", got["new.txt"], "fresh\n")
	}
}
