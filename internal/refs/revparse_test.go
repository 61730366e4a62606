package refs

import (
	"errors"
	"testing"

	"github.com/stashvcs/stash/internal/cas"
	"github.com/stashvcs/stash/internal/object"
)

func testResolver(t *testing.T) (*Resolver, *object.Store) {
	t.Helper()
	s := openTestStore(t)
	objects := object.NewStore(cas.NewMemoryCAS())
	return NewResolver(s, objects), objects
}

func TestResolveRefAndParents(t *testing.T) {
	rv, objects := testResolver(t)

	tree1 := cas.Sum([]byte("tree one"))
	tree2 := cas.Sum([]byte("tree two"))
	root, err := objects.Commit(tree1, nil, "dev <d@e>", "root")
	if err != nil {
		t.Fatalf("commit root: %v", err)
	}
	tip, err := objects.Commit(tree2, []cas.Hash{root}, "dev <d@e>", "tip")
	if err != nil {
		t.Fatalf("commit tip: %v", err)
	}

	if err := rv.Refs.Update("refs/heads/main", tip, &cas.Hash{}, "commit", true); err != nil {
		t.Fatalf("update ref: %v", err)
	}
	if err := rv.Refs.SetHead("main"); err != nil {
		t.Fatalf("set head: %v", err)
	}

	cases := []struct {
		expr string
		want cas.Hash
	}{
		{"HEAD", tip},
		{"main", tip},
		{"refs/heads/main", tip},
		{"HEAD^1", root},
		{"HEAD^", root},
		{"HEAD:", tree2},
		{"HEAD^1:", tree1},
		{tip.String(), tip},
	}
	for _, c := range cases {
		got, err := rv.Resolve(c.expr)
		if err != nil {
			t.Errorf("Resolve(%q) failed: %v", c.expr, err)
			continue
		}
		if got != c.want {
			t.Errorf("Resolve(%q) = %s, want %s", c.expr, got, c.want)
		}
	}

	if _, err := rv.Resolve("HEAD^2"); err == nil {
		t.Error("Resolve(HEAD^2) should fail for a single-parent commit")
	}
}

func TestResolveReflogOrdinal(t *testing.T) {
	rv, objects := testResolver(t)

	tree := cas.Sum([]byte("t"))
	c1, err := objects.Commit(tree, nil, "dev <d@e>", "one")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	c2, err := objects.Commit(tree, []cas.Hash{c1}, "dev <d@e>", "two")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := rv.Refs.Update("refs/stash", c1, &cas.Hash{}, "first", true); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := rv.Refs.Update("refs/stash", c2, &c1, "second", true); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := rv.Resolve("refs/stash@{0}")
	if err != nil || got != c2 {
		t.Errorf("stash@{0} = %s, %v; want %s", got, err, c2)
	}
	got, err = rv.Resolve("stash@{1}")
	if err != nil || got != c1 {
		t.Errorf("stash@{1} = %s, %v; want %s", got, err, c1)
	}
	if _, err := rv.Resolve("stash@{2}"); err == nil {
		t.Error("stash@{2} should not resolve")
	}
}

func TestExpand(t *testing.T) {
	rv, _ := testResolver(t)
	h := cas.Sum([]byte("c"))

	if err := rv.Refs.Update("refs/stash", h, &cas.Hash{}, "push", true); err != nil {
		t.Fatalf("update: %v", err)
	}

	full, found, err := rv.Expand("stash")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if !found || full != "refs/stash" {
		t.Errorf("Expand(stash) = %q, %v; want refs/stash, true", full, found)
	}

	_, found, err = rv.Expand("nothing")
	if err != nil || found {
		t.Errorf("Expand(nothing) = found=%v, err=%v; want not found", found, err)
	}

	// The same short name matching two refs is ambiguous.
	if err := rv.Refs.Update("refs/heads/stash", h, &cas.Hash{}, "commit", true); err != nil {
		t.Fatalf("update: %v", err)
	}
	_, _, err = rv.Expand("stash")
	if !errors.Is(err, ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous, got %v", err)
	}
}
