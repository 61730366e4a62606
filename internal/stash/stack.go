package stash

import (
	"errors"
	"fmt"

	"github.com/stashvcs/stash/internal/cas"
	"github.com/stashvcs/stash/internal/index"
	"github.com/stashvcs/stash/internal/refs"
	"github.com/stashvcs/stash/internal/tree"
)

// DefaultStoreMessage is used when store is given no message.
const DefaultStoreMessage = `Created via "stash store".`

// Push puts a built entry on top of the stack. The ref update is
// compare-and-swap against the tip observed here, and the reflog is created
// if absent: the reflog IS the stack.
func Push(ctx *Context, w cas.Hash, message string) error {
	if message == "" {
		message = DefaultStoreMessage
	}

	expect := &cas.Hash{}
	if cur, err := ctx.Repo.Refs.Lookup(StackRef); err == nil {
		expect = &cur
	} else if !errors.Is(err, refs.ErrNotFound) {
		return err
	}

	if err := ctx.Repo.Refs.Update(StackRef, w, expect, message, true); err != nil {
		if errors.Is(err, refs.ErrStale) {
			return &RefUpdateError{Ref: StackRef, Err: err}
		}
		return err
	}
	return nil
}

// Drop removes the entry the Info addresses from the stack. Only true stack
// references can be dropped; when the last entry goes, the ref goes with it.
func Drop(ctx *Context, info *Info) error {
	if !info.IsStashRef {
		return Usagef("%s is not a stash reference", info.Revision)
	}

	remaining, err := ctx.Repo.Refs.DropLogEntry(StackRef, info.Ordinal)
	if err != nil {
		return fmt.Errorf("drop %s: %w", info.Revision, err)
	}

	ctx.Printf("Dropped %s (%s)\n", info.Revision, info.W)
	if remaining == 0 {
		ctx.Printf("Cleared the stash.\n")
	}
	return nil
}

// Clear removes the whole stack. Clearing an absent stack succeeds.
func Clear(ctx *Context) error {
	return ctx.Repo.Refs.Delete(StackRef, nil)
}

// Pop applies an entry and drops it only when the apply succeeded. A
// conflicted or failed apply leaves the entry in place.
func Pop(ctx *Context, info *Info, restoreIndex bool) error {
	if err := Apply(ctx, info, restoreIndex); err != nil {
		return err
	}
	return Drop(ctx, info)
}

// Branch creates a branch at the entry's base commit, checks it out,
// applies the entry with index restoration forced, and drops it, but only
// when the entry was addressed through the stack ref; arbitrary revisions
// are never auto-dropped.
func Branch(ctx *Context, name string, info *Info) error {
	repo := ctx.Repo
	branchRef := "refs/heads/" + name
	if repo.Refs.Exists(branchRef) {
		return fmt.Errorf("branch '%s' already exists", name)
	}

	expect := &cas.Hash{}
	if err := repo.Refs.Update(branchRef, info.B, expect, "branch: created from stash", false); err != nil {
		if errors.Is(err, refs.ErrStale) {
			return &RefUpdateError{Ref: branchRef, Err: err}
		}
		return err
	}
	if err := repo.Refs.SetHead(name); err != nil {
		return err
	}
	if err := checkoutTree(ctx, info.BTree); err != nil {
		return err
	}
	ctx.Printf("Switched to a new branch '%s'\n", name)

	if err := Apply(ctx, info, true); err != nil {
		return err
	}
	if info.IsStashRef {
		return Drop(ctx, info)
	}
	return nil
}

// checkoutTree resets the index and working tree to the given tree. The
// current side of the diff is the scanned working-tree state of tracked
// files, so unstaged modifications and deletions are reset along with
// staged ones.
func checkoutTree(ctx *Context, target tree.Ref) error {
	loader := ctx.treeLoader()

	idx, err := ctx.loadIndex()
	if err != nil {
		return err
	}
	wt := ctx.Repo.Worktree()
	scanned, err := wt.ScanTracked(idx)
	if err != nil {
		return err
	}
	cur, err := ctx.treeBuilder().Build(scanned)
	if err != nil {
		return err
	}
	changes, err := loader.Diff(cur, target)
	if err != nil {
		return err
	}
	if err := wt.Apply(changes); err != nil {
		return err
	}
	return index.Locked(ctx.WorkspacePath, func(f *index.File) error {
		return f.ReadTree(loader, target)
	})
}

// ResetToHead restores the index and tracked working tree to the head
// commit's tree. Callers run it after a successful push so the saved
// changes leave the working tree.
func ResetToHead(ctx *Context) error {
	head, err := ctx.Repo.Refs.HeadCommit()
	if err != nil {
		return err
	}
	commit, err := ctx.Repo.Commits.Read(head)
	if err != nil {
		return err
	}
	headTree, err := ctx.treeLoader().Load(commit.Tree)
	if err != nil {
		return err
	}
	return checkoutTree(ctx, headTree)
}

// RemoveUntracked deletes the files of a captured untracked tree from the
// working tree, used after pushing an entry that includes them.
func RemoveUntracked(ctx *Context, uTree tree.Ref) error {
	entries, err := ctx.treeLoader().ListAll(uTree)
	if err != nil {
		return err
	}
	changes := make([]tree.Change, 0, len(entries))
	for i := range entries {
		changes = append(changes, tree.Change{Type: tree.Removed, Path: entries[i].Path, Old: &entries[i]})
	}
	return ctx.Repo.Worktree().Apply(changes)
}

// List returns the stack's entries newest first, one line per entry in the
// form "stash@{N}: <message>".
func List(ctx *Context) ([]string, error) {
	entries, err := ctx.Repo.Refs.Log(StackRef)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(entries))
	for i, e := range entries {
		lines = append(lines, fmt.Sprintf("stash@{%d}: %s", i, e.Message))
	}
	return lines, nil
}

// Show returns the changes an entry recorded: the diff from its base tree
// to its worktree tree.
func Show(ctx *Context, info *Info) ([]tree.Change, error) {
	return ctx.treeLoader().Diff(info.BTree, info.WTree)
}
