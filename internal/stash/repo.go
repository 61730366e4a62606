// Package stash implements saving and restoring uncommitted working-tree
// state. An entry snapshots the base commit, the staged index, the working
// tree, and optionally untracked files, encoded as one multi-parent commit;
// the stack of entries is the reflog of a single ref.
package stash

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/stashvcs/stash/internal/cas"
	"github.com/stashvcs/stash/internal/index"
	"github.com/stashvcs/stash/internal/merge"
	"github.com/stashvcs/stash/internal/object"
	"github.com/stashvcs/stash/internal/refs"
	"github.com/stashvcs/stash/internal/tree"
	"github.com/stashvcs/stash/internal/worktree"
)

// StackRef is the ref whose reflog backs the stash stack.
const StackRef = "refs/stash"

// MetaDir is the repository metadata directory name.
const MetaDir = ".stash"

// EnvAuthor overrides the committer identity.
const EnvAuthor = "STASH_AUTHOR"

// Repo is an open repository: working directory, object store, refs.
type Repo struct {
	WorkDir string
	MetaDir string

	Objects  cas.CAS
	Commits  *object.Store
	Refs     *refs.Store
	Resolver *refs.Resolver
	Records  *merge.RecordStore
}

// Init creates a repository under workDir and opens it.
func Init(workDir string) (*Repo, error) {
	meta := filepath.Join(workDir, MetaDir)
	if _, err := os.Stat(meta); err == nil {
		return nil, fmt.Errorf("repository already initialized at %s", meta)
	}
	if err := os.MkdirAll(meta, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", meta, err)
	}
	return Open(workDir)
}

// Open opens the repository rooted at workDir.
func Open(workDir string) (*Repo, error) {
	meta := filepath.Join(workDir, MetaDir)
	if info, err := os.Stat(meta); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("not a repository: %s does not exist", meta)
	}

	objects, err := cas.NewDiskCAS(filepath.Join(meta, "objects"))
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}

	refStore, err := refs.Open(meta)
	if err != nil {
		return nil, fmt.Errorf("open refs: %w", err)
	}

	commits := object.NewStore(objects)
	return &Repo{
		WorkDir:  workDir,
		MetaDir:  meta,
		Objects:  objects,
		Commits:  commits,
		Refs:     refStore,
		Resolver: refs.NewResolver(refStore, commits),
		Records:  merge.NewRecordStore(meta),
	}, nil
}

// Close releases the repository's resources.
func (r *Repo) Close() error {
	return r.Refs.Close()
}

// Worktree returns a working-tree accessor for the repository.
func (r *Repo) Worktree() *worktree.Worktree {
	return worktree.New(r.Objects, r.MetaDir, r.WorkDir)
}

// Author returns the committer identity, overridable via STASH_AUTHOR.
func (r *Repo) Author() string {
	if a := os.Getenv(EnvAuthor); a != "" {
		return a
	}
	return "stash <stash@localhost>"
}

// branchLabel names the current branch for entry messages, "(no branch)"
// when HEAD is detached or unborn.
func (r *Repo) branchLabel() string {
	branch, err := r.Refs.Head()
	if err != nil || branch == "" {
		return "(no branch)"
	}
	return branch
}

// Context carries the per-operation state every stash operation needs.
// Nothing in this package keeps mutable package-level state; callers build
// one Context per invocation and thread it through explicitly.
type Context struct {
	Repo *Repo

	// WorkspacePath is the authoritative index path. Scratch workspaces
	// derive their own paths from it.
	WorkspacePath string

	Quiet  bool
	Prefix []string // pathspec limits, when given

	Out io.Writer
	Err io.Writer
}

// NewContext builds a Context for a repository with defaults applied.
func NewContext(repo *Repo) *Context {
	return &Context{
		Repo:          repo,
		WorkspacePath: index.DefaultPath(repo.MetaDir),
		Out:           os.Stdout,
		Err:           os.Stderr,
	}
}

// Printf writes user-facing output unless running quietly.
func (c *Context) Printf(format string, args ...interface{}) {
	if !c.Quiet {
		fmt.Fprintf(c.Out, format, args...)
	}
}

// Errorf writes a diagnostic to the error stream. Diagnostics are not
// silenced by quiet mode.
func (c *Context) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(c.Err, format, args...)
}

// loadIndex reads the authoritative index.
func (c *Context) loadIndex() (*index.File, error) {
	return index.Load(c.WorkspacePath)
}

func (c *Context) treeBuilder() *tree.Builder {
	return tree.NewBuilder(c.Repo.Objects)
}

func (c *Context) treeLoader() *tree.Loader {
	return tree.NewLoader(c.Repo.Objects)
}
