package stash

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/stashvcs/stash/internal/index"
	"github.com/stashvcs/stash/internal/merge"
	"github.com/stashvcs/stash/internal/tree"
)

// selectHunks builds the patch-mode worktree tree: the working-tree changes
// of each tracked file are split into hunks against the head tree, the user
// picks hunks, and the selection is materialized into a scratch workspace
// seeded from the head tree. The rendered patch of the selection is
// retained alongside the tree, since a patch-mode entry captures no index
// state to reconstruct it from later.
//
// Declining every hunk is ErrNothingSelected: no entry is created.
func selectHunks(ctx *Context, idx *index.File, headTree tree.Ref, opts CreateOptions) (tree.Ref, []byte, error) {
	loader := ctx.treeLoader()
	headEntries, err := loader.ListAll(headTree)
	if err != nil {
		return tree.Ref{}, nil, err
	}
	hmap := make(map[string]tree.Entry, len(headEntries))
	for _, e := range headEntries {
		hmap[e.Path] = e
	}

	wt := ctx.Repo.Worktree()
	scanned, err := wt.ScanTracked(idx)
	if err != nil {
		return tree.Ref{}, nil, err
	}

	confirm := opts.Confirm
	if confirm == nil {
		confirm = promptHunk
	}

	ws := index.NewWorkspace(ctx.WorkspacePath)
	defer ws.Release()
	widx, err := ws.Load()
	if err != nil {
		return tree.Ref{}, nil, err
	}
	if err := widx.ReadTree(loader, headTree); err != nil {
		return tree.Ref{}, nil, err
	}

	var patchText bytes.Buffer
	anySelected := false

	for _, e := range scanned {
		if len(opts.Paths) > 0 && !withinPaths(e.Path, opts.Paths) {
			continue
		}

		var baseText []byte
		if he, ok := hmap[e.Path]; ok {
			if he.Blob == e.Blob {
				continue
			}
			baseText, err = ctx.Repo.Objects.Get(he.Blob)
			if err != nil {
				return tree.Ref{}, nil, fmt.Errorf("load head content for %s: %w", e.Path, err)
			}
		}
		curData, err := ctx.Repo.Objects.Get(e.Blob)
		if err != nil {
			return tree.Ref{}, nil, fmt.Errorf("load working-tree content for %s: %w", e.Path, err)
		}

		hunks := merge.Hunks(baseText, curData)
		if len(hunks) == 0 {
			continue
		}

		var chosen []merge.Hunk
		var rendered []string
		delta := 0
		for _, h := range hunks {
			text := renderHunk(h, delta)
			delta += len(h.Lines) - len(h.BaseLines)

			ok, err := confirm(e.Path, text)
			if err != nil {
				return tree.Ref{}, nil, err
			}
			if ok {
				chosen = append(chosen, h)
				rendered = append(rendered, text)
			}
		}
		if len(chosen) == 0 {
			continue
		}

		content := merge.ApplyHunks(baseText, chosen)
		blob, err := wt.WriteBlob(content)
		if err != nil {
			return tree.Ref{}, nil, err
		}
		widx.Set(index.Entry{Path: e.Path, Blob: blob, Mode: e.Mode, Size: int64(len(content))})
		anySelected = true

		fmt.Fprintf(&patchText, "--- a/%s\n+++ b/%s\n", e.Path, e.Path)
		for _, r := range rendered {
			patchText.WriteString(r)
		}
	}

	if !anySelected {
		return tree.Ref{}, nil, ErrNothingSelected
	}

	if err := widx.Save(); err != nil {
		return tree.Ref{}, nil, err
	}
	wTree, err := widx.WriteTree(ctx.treeBuilder())
	if err != nil {
		return tree.Ref{}, nil, fmt.Errorf("write selected tree: %w", err)
	}
	return wTree, patchText.Bytes(), nil
}

// RevertSelection removes a patch-mode entry's selected hunks from the
// working tree after a push, leaving the unselected changes in place. The
// reverse edits are computed per file as the patch turning the selected
// content back into the head content, applied fuzzily to the current
// working-tree content.
func RevertSelection(ctx *Context, info *Info) error {
	loader := ctx.treeLoader()
	changes, err := loader.Diff(info.BTree, info.WTree)
	if err != nil {
		return err
	}

	wt := ctx.Repo.Worktree()
	dmp := diffmatchpatch.New()
	for _, c := range changes {
		var headText, selText string
		if c.Old != nil {
			data, err := ctx.Repo.Objects.Get(c.Old.Blob)
			if err != nil {
				return err
			}
			headText = string(data)
		}
		if c.New != nil {
			data, err := ctx.Repo.Objects.Get(c.New.Blob)
			if err != nil {
				return err
			}
			selText = string(data)
		}

		cur, err := readWorktreeFile(ctx, c.Path)
		if err != nil {
			return err
		}
		reverted, _ := dmp.PatchApply(dmp.PatchMake(selText, headText), string(cur))
		if err := wt.WriteContent(c.Path, []byte(reverted)); err != nil {
			return err
		}
	}
	return nil
}

func readWorktreeFile(ctx *Context, path string) ([]byte, error) {
	full := filepath.Join(ctx.Repo.WorkDir, filepath.FromSlash(path))
	data, err := os.ReadFile(full)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// promptHunk asks on the terminal whether to stash one hunk.
func promptHunk(path, hunk string) (bool, error) {
	ok := false
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Stash this hunk from %s?\n%s", path, hunk),
	}
	if err := survey.AskOne(prompt, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// renderHunk formats one hunk in unified-diff style. delta is the line
// offset accumulated by earlier hunks of the same file.
func renderHunk(h merge.Hunk, delta int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.BaseFrom+1, len(h.BaseLines), h.BaseFrom+delta+1, len(h.Lines))
	for _, line := range h.BaseLines {
		writeDiffLine(&b, "-", line)
	}
	for _, line := range h.Lines {
		writeDiffLine(&b, "+", line)
	}
	return b.String()
}

func writeDiffLine(b *strings.Builder, prefix, line string) {
	b.WriteString(prefix)
	b.WriteString(line)
	if !strings.HasSuffix(line, "\n") {
		b.WriteString("\n")
	}
}

func withinPaths(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}
