package stash

import (
	"errors"
	"fmt"

	"github.com/stashvcs/stash/internal/index"
	"github.com/stashvcs/stash/internal/merge"
	"github.com/stashvcs/stash/internal/refs"
	"github.com/stashvcs/stash/internal/tree"
	"github.com/stashvcs/stash/internal/worktree"
)

// Apply restores a stash entry into the working tree via three-way merge.
// With restoreIndex, the entry's captured index state is replayed into the
// authoritative index first. Apply never drops the entry.
//
// Mutation order is deliberate and matches the failure contract: the index
// replay commits before untracked checkout starts, an untracked failure is
// reported without undoing the replay, and a merge hard-failure leaves the
// tracked working tree untouched.
func Apply(ctx *Context, info *Info, restoreIndex bool) error {
	repo := ctx.Repo

	// Precondition: a clean tree must be computable from the current
	// index. An unfinished merge means it cannot.
	if repo.Records.Exists() {
		return fmt.Errorf("cannot apply a stash in the middle of a merge")
	}
	idx, err := ctx.loadIndex()
	if err != nil {
		return err
	}
	cTree, err := idx.WriteTree(ctx.treeBuilder())
	if err != nil {
		return fmt.Errorf("write current index tree: %w", err)
	}

	loader := ctx.treeLoader()

	// Replay the captured index state as the binary diff between the
	// entry's base tree and index tree, applied to the current index
	// only. Skipped when the entry carries no index changes or the
	// current index already matches. Failure aborts before anything
	// else is touched.
	indexRestored := false
	var restoredTree tree.Ref
	if restoreIndex && info.ITree.Hash != info.BTree.Hash && info.ITree.Hash != cTree.Hash {
		changes, err := loader.Diff(info.BTree, info.ITree)
		if err != nil {
			return fmt.Errorf("could not restore index state: %w", err)
		}
		err = index.Locked(ctx.WorkspacePath, func(f *index.File) error {
			applyIndexChanges(f, changes)
			// The replay tree is current index + captured changes, not
			// the entry's index tree: staged state unrelated to the
			// entry survives the restore.
			var werr error
			restoredTree, werr = f.WriteTree(ctx.treeBuilder())
			return werr
		})
		if err != nil {
			return fmt.Errorf("could not restore index state: %w", err)
		}
		indexRestored = true
	}

	// Untracked files check out through a scratch workspace. A failure
	// here is reported but the index replay above stays in place.
	if info.HasUntracked {
		if err := restoreUntracked(ctx, info.UTree); err != nil {
			return fmt.Errorf("could not restore untracked files from stash: %w", err)
		}
	}

	labels := merge.Labels{
		Ancestor: "Version stash was based on",
		Current:  "Updated upstream",
		Incoming: "Stashed changes",
	}
	if info.BTree.Hash == cTree.Hash {
		// Nothing changed since the stash was taken; ours is the base.
		labels.Current = "Version stash was based on"
	}

	merger := merge.NewMerger(repo.Objects, labels)
	res, err := merger.MergeTrees(info.BTree, cTree, info.WTree)
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	wt := repo.Worktree()
	if !res.Clean {
		if err := writeMergeOutcome(ctx, wt, cTree, res); err != nil {
			return err
		}
		rec := merge.NewRecord(info.BTree.Hash.String(), cTree.Hash.String(), info.WTree.Hash.String(), res.Conflicts)
		if err := repo.Records.Save(rec); err != nil {
			return err
		}
		return &ConflictError{Paths: res.Conflicts}
	}

	changes, err := loader.Diff(cTree, res.Tree)
	if err != nil {
		return err
	}
	if err := wt.Apply(changes); err != nil {
		return err
	}

	// Asymmetric index replay: a replayed index state resets the index to
	// exactly the tree the replay produced; otherwise only paths the merge
	// newly added are staged and every other merge-introduced staged
	// change is discarded.
	err = index.Locked(ctx.WorkspacePath, func(f *index.File) error {
		if indexRestored {
			if err := f.ReadTree(loader, restoredTree); err != nil {
				return err
			}
		} else {
			for _, c := range changes {
				if c.Type == tree.Added {
					f.Set(index.Entry{Path: c.Path, Blob: c.New.Blob, Mode: c.New.Mode, Size: c.New.Size})
				}
			}
		}
		wt.RefreshIndex(f)
		return nil
	})
	if err != nil {
		return err
	}

	printStatus(ctx, res.Tree)
	return nil
}

func applyIndexChanges(f *index.File, changes []tree.Change) {
	for _, c := range changes {
		switch c.Type {
		case tree.Added, tree.Modified:
			f.Set(index.Entry{Path: c.Path, Blob: c.New.Blob, Mode: c.New.Mode, Size: c.New.Size})
		case tree.Removed:
			f.Remove(c.Path)
		}
	}
}

// restoreUntracked materializes the untracked tree into the working tree,
// routed through a scratch workspace.
func restoreUntracked(ctx *Context, uTree tree.Ref) error {
	ws := index.NewWorkspace(ctx.WorkspacePath)
	defer ws.Release()

	f, err := ws.Load()
	if err != nil {
		return err
	}
	if err := f.ReadTree(ctx.treeLoader(), uTree); err != nil {
		return err
	}
	if err := f.Save(); err != nil {
		return err
	}
	return ctx.Repo.Worktree().Checkout(f)
}

// writeMergeOutcome updates the working tree after a conflicted merge:
// cleanly merged paths get their merged content, conflicted paths get
// marker-annotated content. Nothing is dropped.
func writeMergeOutcome(ctx *Context, wt *worktree.Worktree, cTree tree.Ref, res *merge.Result) error {
	current, err := ctx.treeLoader().ListAll(cTree)
	if err != nil {
		return err
	}
	cmap := make(map[string]tree.Entry, len(current))
	for _, e := range current {
		cmap[e.Path] = e
	}

	var clean []tree.Change
	for _, fr := range res.Files {
		if fr.Conflicted {
			if err := wt.WriteContent(fr.Path, fr.Content); err != nil {
				return err
			}
			continue
		}
		cur, had := cmap[fr.Path]
		switch {
		case fr.Entry == nil && had:
			old := cur
			clean = append(clean, tree.Change{Type: tree.Removed, Path: fr.Path, Old: &old})
		case fr.Entry != nil && (!had || cur.Blob != fr.Entry.Blob):
			clean = append(clean, tree.Change{Type: tree.Modified, Path: fr.Path, New: fr.Entry})
		}
	}
	return wt.Apply(clean)
}

// printStatus prints a summary of the restored state against the head tree.
func printStatus(ctx *Context, merged tree.Ref) {
	if ctx.Quiet {
		return
	}
	head, err := ctx.Repo.Refs.HeadCommit()
	if err != nil {
		if !errors.Is(err, refs.ErrNotFound) {
			ctx.Errorf("status unavailable: %v\n", err)
		}
		return
	}
	commit, err := ctx.Repo.Commits.Read(head)
	if err != nil {
		return
	}
	loader := ctx.treeLoader()
	headTree, err := loader.Load(commit.Tree)
	if err != nil {
		return
	}
	changes, err := loader.Diff(headTree, merged)
	if err != nil {
		return
	}
	ctx.Printf("%s\n", worktree.Summary(changes))
}
