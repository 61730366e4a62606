package stash

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stashvcs/stash/internal/cas"
	"github.com/stashvcs/stash/internal/tree"
)

// Info is the resolved view of one stash entry: the four logical commits
// and their trees. It is transient; the entry's only persisted form is the
// multi-parent worktree commit.
type Info struct {
	Revision string

	// IsStashRef reports that Revision addresses the stash stack itself,
	// so operations like pop may drop the entry afterwards. Ordinal is
	// the reflog position, valid only when IsStashRef.
	IsStashRef bool
	Ordinal    int

	HasUntracked bool

	W cas.Hash // worktree commit: the stash entry
	B cas.Hash // base commit the entry was taken on
	I cas.Hash // index commit
	U cas.Hash // untracked commit, zero unless HasUntracked

	WTree tree.Ref
	BTree tree.Ref
	ITree tree.Ref
	UTree tree.Ref
}

// ResolveInfo resolves zero or one revision argument into an Info. A
// numeric argument addresses the stack by ordinal; absence means ordinal 0.
// A revision that resolves to a commit without the two- or three-parent
// stash shape is an InvariantViolation.
func ResolveInfo(ctx *Context, args []string) (*Info, error) {
	if len(args) > 1 {
		return nil, Usagef("too many revisions specified: %s", strings.Join(args, " "))
	}

	rev := fmt.Sprintf("%s@{0}", StackRef)
	if len(args) == 1 {
		if _, err := strconv.Atoi(args[0]); err == nil && !strings.HasPrefix(args[0], "-") {
			rev = fmt.Sprintf("%s@{%s}", StackRef, args[0])
		} else {
			rev = args[0]
		}
	}

	r := ctx.Repo.Resolver
	w, err := r.Resolve(rev)
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid reference", rev)
	}

	info := &Info{Revision: rev, W: w}

	// A stash entry must yield a base commit and the three trees. Any
	// failure here means the commit does not have the stash shape.
	if info.B, err = r.Resolve(rev + "^1"); err != nil {
		return nil, &InvariantViolation{Revision: rev, Err: err}
	}
	if info.I, err = r.Resolve(rev + "^2"); err != nil {
		return nil, &InvariantViolation{Revision: rev, Err: err}
	}

	loader := ctx.treeLoader()
	if info.WTree, err = resolveTree(ctx, loader, rev+":"); err != nil {
		return nil, &InvariantViolation{Revision: rev, Err: err}
	}
	if info.BTree, err = resolveTree(ctx, loader, rev+"^1:"); err != nil {
		return nil, &InvariantViolation{Revision: rev, Err: err}
	}
	if info.ITree, err = resolveTree(ctx, loader, rev+"^2:"); err != nil {
		return nil, &InvariantViolation{Revision: rev, Err: err}
	}

	// A third parent holds untracked files; its absence is not an error.
	if u, err := r.Resolve(rev + "^3"); err == nil {
		info.U = u
		info.UTree, err = resolveTree(ctx, loader, rev+"^3:")
		if err != nil {
			return nil, &InvariantViolation{Revision: rev, Err: err}
		}
		info.HasUntracked = true
	}

	if err := classifyRevision(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// resolveTree resolves a tree-valued expression and loads its ref.
func resolveTree(ctx *Context, loader *tree.Loader, expr string) (tree.Ref, error) {
	hash, err := ctx.Repo.Resolver.Resolve(expr)
	if err != nil {
		return tree.Ref{}, err
	}
	return loader.Load(hash)
}

// classifyRevision decides whether the revision addresses the stack ref.
// The @{...} suffix is stripped and the remaining name symbolically
// expanded; an ambiguous expansion is fatal.
func classifyRevision(ctx *Context, info *Info) error {
	base := info.Revision
	ord := 0
	if i := strings.Index(base, "@{"); i >= 0 && strings.HasSuffix(base, "}") {
		n, err := strconv.Atoi(base[i+2 : len(base)-1])
		if err != nil {
			return fmt.Errorf("invalid reflog suffix in %s", info.Revision)
		}
		ord = n
		base = base[:i]
	}

	full, found, err := ctx.Repo.Resolver.Expand(base)
	if err != nil {
		return err
	}
	if found && full == StackRef {
		info.IsStashRef = true
		info.Ordinal = ord
	}
	return nil
}
