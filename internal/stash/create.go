package stash

import (
	"errors"
	"fmt"

	"github.com/stashvcs/stash/internal/cas"
	"github.com/stashvcs/stash/internal/index"
	"github.com/stashvcs/stash/internal/refs"
	"github.com/stashvcs/stash/internal/tree"
)

// CreateOptions controls snapshot building.
type CreateOptions struct {
	Message          string
	IncludeUntracked bool
	Patch            bool
	Paths            []string // pathspec limits for patch mode and untracked scans

	// Confirm decides whether a hunk is stashed in patch mode. Nil means
	// an interactive terminal prompt.
	Confirm func(path, hunk string) (bool, error)
}

// Created is the result of a successful snapshot build.
type Created struct {
	Info    *Info
	Message string

	// Patch is the selected-hunk patch retained in patch mode; restores
	// of a patch-mode entry carry no index state, so the patch itself is
	// the record of what was selected.
	Patch []byte
}

// Create builds a stash entry from the current repository state and returns
// it without pushing it anywhere. There is either a fully built entry or no
// object-store effect a reader can name: ErrNoChanges and ErrNothingSelected
// leave the stack untouched.
//
// Every scratch workspace opened here is released on every exit path.
func Create(ctx *Context, opts CreateOptions) (*Created, error) {
	repo := ctx.Repo

	b, err := repo.Refs.HeadCommit()
	if err != nil {
		if errors.Is(err, refs.ErrNotFound) {
			return nil, fmt.Errorf("you do not have the initial commit yet")
		}
		return nil, err
	}
	headCommit, err := repo.Commits.Read(b)
	if err != nil {
		return nil, fmt.Errorf("read head commit: %w", err)
	}
	headTree, err := ctx.treeLoader().Load(headCommit.Tree)
	if err != nil {
		return nil, fmt.Errorf("load head tree: %w", err)
	}

	label := fmt.Sprintf("%s: %s %s", repo.branchLabel(), b.Short(), headCommit.Subject())

	idx, err := ctx.loadIndex()
	if err != nil {
		return nil, err
	}
	builder := ctx.treeBuilder()
	iTree, err := idx.WriteTree(builder)
	if err != nil {
		return nil, fmt.Errorf("write index tree: %w", err)
	}

	wt := repo.Worktree()
	var untracked []string
	if opts.IncludeUntracked {
		untracked, err = wt.Untracked(idx, opts.Paths)
		if err != nil {
			return nil, err
		}
	}

	changed, err := hasChanges(ctx, idx, headTree, iTree)
	if err != nil {
		return nil, err
	}
	if !changed && len(untracked) == 0 {
		return nil, ErrNoChanges
	}

	author := repo.Author()
	i, err := repo.Commits.Commit(iTree.Hash, []cas.Hash{b}, author, "index on "+label)
	if err != nil {
		return nil, fmt.Errorf("commit index state: %w", err)
	}

	info := &Info{B: b, I: i, BTree: headTree, ITree: iTree}

	if len(untracked) > 0 {
		info.U, info.UTree, err = snapshotUntracked(ctx, untracked, author, label)
		if err != nil {
			return nil, err
		}
		info.HasUntracked = true
	}

	var patch []byte
	if opts.Patch {
		info.WTree, patch, err = selectHunks(ctx, idx, headTree, opts)
		if err != nil {
			return nil, err
		}
	} else {
		info.WTree, err = snapshotWorktree(ctx, idx, iTree)
		if err != nil {
			return nil, err
		}
	}

	message := opts.Message
	if message == "" {
		message = "WIP on " + label
	} else {
		message = fmt.Sprintf("On %s: %s", repo.branchLabel(), message)
	}

	parents := []cas.Hash{b, i}
	if info.HasUntracked {
		parents = append(parents, info.U)
	}
	info.W, err = repo.Commits.Commit(info.WTree.Hash, parents, author, message)
	if err != nil {
		return nil, fmt.Errorf("commit working-tree state: %w", err)
	}

	return &Created{Info: info, Message: message, Patch: patch}, nil
}

// hasChanges reports whether there is anything to save: staged changes
// against the head tree, or working-tree changes against the index.
func hasChanges(ctx *Context, idx *index.File, headTree, iTree tree.Ref) (bool, error) {
	if iTree.Hash != headTree.Hash {
		return true, nil
	}

	wt := ctx.Repo.Worktree()
	scanned, err := wt.ScanTracked(idx)
	if err != nil {
		return false, err
	}
	if len(scanned) != idx.Len() {
		return true, nil // tracked file deleted from the working tree
	}
	for _, e := range scanned {
		if cur := idx.Get(e.Path); cur == nil || cur.Blob != e.Blob {
			return true, nil
		}
	}
	return false, nil
}

// snapshotUntracked stages untracked files into a scratch workspace and
// commits the resulting tree. The untracked commit has no parents.
func snapshotUntracked(ctx *Context, paths []string, author, label string) (cas.Hash, tree.Ref, error) {
	ws := index.NewWorkspace(ctx.WorkspacePath)
	defer ws.Release()

	uidx, err := ws.Load()
	if err != nil {
		return cas.Hash{}, tree.Ref{}, err
	}
	if err := ctx.Repo.Worktree().Stage(uidx, paths); err != nil {
		return cas.Hash{}, tree.Ref{}, err
	}
	if err := uidx.Save(); err != nil {
		return cas.Hash{}, tree.Ref{}, err
	}

	uTree, err := uidx.WriteTree(ctx.treeBuilder())
	if err != nil {
		return cas.Hash{}, tree.Ref{}, fmt.Errorf("write untracked tree: %w", err)
	}
	u, err := ctx.Repo.Commits.Commit(uTree.Hash, nil, author, "untracked files on "+label)
	if err != nil {
		return cas.Hash{}, tree.Ref{}, fmt.Errorf("commit untracked files: %w", err)
	}
	return u, uTree, nil
}

// snapshotWorktree captures the working-tree state of tracked files: a
// scratch workspace is seeded from the index tree, then the working tree's
// deviations from the index are replayed into it.
func snapshotWorktree(ctx *Context, idx *index.File, iTree tree.Ref) (tree.Ref, error) {
	ws := index.NewWorkspace(ctx.WorkspacePath)
	defer ws.Release()

	widx, err := ws.Load()
	if err != nil {
		return tree.Ref{}, err
	}
	if err := widx.ReadTree(ctx.treeLoader(), iTree); err != nil {
		return tree.Ref{}, err
	}

	scanned, err := ctx.Repo.Worktree().ScanTracked(idx)
	if err != nil {
		return tree.Ref{}, err
	}
	present := make(map[string]tree.Entry, len(scanned))
	for _, e := range scanned {
		present[e.Path] = e
	}
	for _, e := range idx.Entries() {
		se, ok := present[e.Path]
		if !ok {
			widx.Remove(e.Path)
			continue
		}
		widx.Set(index.Entry{Path: se.Path, Blob: se.Blob, Mode: se.Mode, Size: se.Size})
	}
	if err := widx.Save(); err != nil {
		return tree.Ref{}, err
	}

	wTree, err := widx.WriteTree(ctx.treeBuilder())
	if err != nil {
		return tree.Ref{}, fmt.Errorf("write worktree tree: %w", err)
	}
	return wTree, nil
}
