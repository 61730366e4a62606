// Package worktree moves file content between the working directory, the
// object store, and index/tree snapshots.
package worktree

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/stashvcs/stash/internal/cas"
	"github.com/stashvcs/stash/internal/index"
	"github.com/stashvcs/stash/internal/tree"
)

// Worktree binds a working directory to an object store.
type Worktree struct {
	CAS      cas.CAS
	StashDir string // metadata directory, skipped during scans
	WorkDir  string
}

// New creates a Worktree.
func New(store cas.CAS, stashDir, workDir string) *Worktree {
	return &Worktree{CAS: store, StashDir: stashDir, WorkDir: workDir}
}

// WriteBlob stores file content and returns its id.
func (w *Worktree) WriteBlob(content []byte) (cas.Hash, error) {
	hash := cas.Sum(content)
	if err := w.CAS.Put(hash, content); err != nil {
		return cas.Hash{}, fmt.Errorf("store blob: %w", err)
	}
	return hash, nil
}

// ScanTracked captures the current working-tree content of every path the
// given index tracks. Files deleted from the working tree are omitted, so
// the result is the worktree-side snapshot of tracked state.
func (w *Worktree) ScanTracked(idx *index.File) ([]tree.Entry, error) {
	var entries []tree.Entry
	for _, e := range idx.Entries() {
		full := filepath.Join(w.WorkDir, filepath.FromSlash(e.Path))
		info, err := os.Stat(full)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", e.Path, err)
		}

		content, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Path, err)
		}
		blob, err := w.WriteBlob(content)
		if err != nil {
			return nil, err
		}

		entries = append(entries, tree.Entry{
			Path: e.Path,
			Blob: blob,
			Mode: uint32(info.Mode()),
			Size: info.Size(),
		})
	}
	return entries, nil
}

// Untracked lists working-tree files absent from the index, limited to the
// given path prefixes when any are supplied.
func (w *Worktree) Untracked(idx *index.File, prefixes []string) ([]string, error) {
	metaRel, _ := filepath.Rel(w.WorkDir, w.StashDir)

	var paths []string
	err := filepath.WalkDir(w.WorkDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(w.WorkDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == filepath.ToSlash(metaRel) {
				return filepath.SkipDir
			}
			return nil
		}

		if idx.Get(rel) != nil {
			return nil
		}
		if len(prefixes) > 0 && !matchesPrefix(rel, prefixes) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan untracked files: %w", err)
	}
	return paths, nil
}

// Stage reads the given working-tree paths and records them in idx.
func (w *Worktree) Stage(idx *index.File, paths []string) error {
	for _, p := range paths {
		full := filepath.Join(w.WorkDir, filepath.FromSlash(p))
		info, err := os.Stat(full)
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		content, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		blob, err := w.WriteBlob(content)
		if err != nil {
			return err
		}
		idx.Set(index.Entry{
			Path:    p,
			Blob:    blob,
			Mode:    uint32(info.Mode()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return nil
}

// Checkout writes every entry of an index into the working tree.
func (w *Worktree) Checkout(idx *index.File) error {
	for _, e := range idx.Entries() {
		if err := w.writeFile(e.Path, e.Blob, e.Mode); err != nil {
			return err
		}
	}
	return nil
}

// Apply replays tree-level changes onto the working tree: added and modified
// entries are written out, removed entries deleted along with any directories
// they leave empty.
func (w *Worktree) Apply(changes []tree.Change) error {
	for _, c := range changes {
		switch c.Type {
		case tree.Added, tree.Modified:
			if err := w.writeFile(c.Path, c.New.Blob, c.New.Mode); err != nil {
				return err
			}
		case tree.Removed:
			full := filepath.Join(w.WorkDir, filepath.FromSlash(c.Path))
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove %s: %w", c.Path, err)
			}
			w.pruneEmptyDirs(filepath.Dir(full))
		}
	}
	return nil
}

// WriteContent writes raw content to a working-tree path, creating parent
// directories as needed. Used for conflict-marker output and other content
// that does not come from a stored blob.
func (w *Worktree) WriteContent(path string, content []byte) error {
	full := filepath.Join(w.WorkDir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", path, err)
	}
	if err := os.WriteFile(full, content, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (w *Worktree) writeFile(path string, blob cas.Hash, mode uint32) error {
	content, err := w.CAS.Get(blob)
	if err != nil {
		return fmt.Errorf("load blob for %s: %w", path, err)
	}

	full := filepath.Join(w.WorkDir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", path, err)
	}

	perm := os.FileMode(mode) & os.ModePerm
	if perm == 0 {
		perm = 0644
	}
	if err := os.WriteFile(full, content, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (w *Worktree) pruneEmptyDirs(dir string) {
	for dir != w.WorkDir && dir != "." {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// RefreshIndex re-stats tracked files and updates cached metadata for
// entries whose content still matches, so later scans stay cheap.
func (w *Worktree) RefreshIndex(idx *index.File) {
	for _, e := range idx.Entries() {
		full := filepath.Join(w.WorkDir, filepath.FromSlash(e.Path))
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		content, err := os.ReadFile(full)
		if err != nil || cas.Sum(content) != e.Blob {
			continue
		}
		e.ModTime = info.ModTime()
		e.Size = info.Size()
		idx.Set(e)
	}
}

// Summary renders a short change summary for status output.
func Summary(changes []tree.Change) string {
	if len(changes) == 0 {
		return "nothing to report, working tree clean"
	}

	var b strings.Builder
	for _, c := range changes {
		switch c.Type {
		case tree.Added:
			fmt.Fprintf(&b, "A  %s\n", c.Path)
		case tree.Modified:
			fmt.Fprintf(&b, "M  %s\n", c.Path)
		case tree.Removed:
			fmt.Fprintf(&b, "D  %s\n", c.Path)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func matchesPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}
