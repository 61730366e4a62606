package refs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stashvcs/stash/internal/cas"
	"github.com/stashvcs/stash/internal/object"
)

// ErrAmbiguous is returned when a short ref name expands to more than one ref.
var ErrAmbiguous = errors.New("ambiguous ref name")

// Resolver turns revision expressions into object ids. Supported forms:
//
//	<hex>                full 64-char object id
//	HEAD, <refname>      symbolic names, expanded like git's dwim rules
//	<rev>@{N}            N-th reflog predecessor
//	<rev>^N              N-th parent of a commit (default 1)
//	<rev>:               tree of a commit (trailing colon)
type Resolver struct {
	Refs    *Store
	Objects *object.Store
}

// NewResolver creates a Resolver over a ref store and a commit store.
func NewResolver(r *Store, o *object.Store) *Resolver {
	return &Resolver{Refs: r, Objects: o}
}

// Resolve evaluates a revision expression to an object id.
func (rv *Resolver) Resolve(expr string) (cas.Hash, error) {
	if expr == "" {
		return cas.Hash{}, fmt.Errorf("empty revision")
	}

	rest := expr
	wantTree := false
	if strings.HasSuffix(rest, ":") {
		wantTree = true
		rest = rest[:len(rest)-1]
	}

	// Peel ^N suffixes off the end, innermost last.
	var parents []int
	for {
		i := strings.LastIndexByte(rest, '^')
		if i < 0 || !allDigits(rest[i+1:]) {
			break
		}
		n := 1
		if i+1 < len(rest) {
			var err error
			n, err = strconv.Atoi(rest[i+1:])
			if err != nil {
				break
			}
		}
		parents = append([]int{n}, parents...)
		rest = rest[:i]
	}

	hash, err := rv.resolveBase(rest)
	if err != nil {
		return cas.Hash{}, err
	}

	for _, n := range parents {
		commit, err := rv.Objects.Read(hash)
		if err != nil {
			return cas.Hash{}, fmt.Errorf("resolve %s: %w", expr, err)
		}
		parent, ok := commit.Parent(n)
		if !ok {
			return cas.Hash{}, fmt.Errorf("resolve %s: commit %s has no parent %d", expr, hash.Short(), n)
		}
		hash = parent
	}

	if wantTree {
		commit, err := rv.Objects.Read(hash)
		if err != nil {
			return cas.Hash{}, fmt.Errorf("resolve %s: %w", expr, err)
		}
		hash = commit.Tree
	}

	return hash, nil
}

// resolveBase handles the reflog and name forms.
func (rv *Resolver) resolveBase(expr string) (cas.Hash, error) {
	if name, ord, ok := splitReflogSuffix(expr); ok {
		full, found, err := rv.Expand(name)
		if err != nil {
			return cas.Hash{}, err
		}
		if !found {
			return cas.Hash{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		entry, err := rv.Refs.LogAt(full, ord)
		if err != nil {
			return cas.Hash{}, err
		}
		return entry.New, nil
	}

	if len(expr) == 64 {
		if h, err := cas.ParseHash(expr); err == nil {
			return h, nil
		}
	}

	if expr == "HEAD" {
		return rv.Refs.HeadCommit()
	}

	full, found, err := rv.Expand(expr)
	if err != nil {
		return cas.Hash{}, err
	}
	if !found {
		return cas.Hash{}, fmt.Errorf("%w: %s", ErrNotFound, expr)
	}
	return rv.Refs.Lookup(full)
}

// Expand maps a possibly-short ref name onto a full ref name. The bool is
// false when nothing matched; more than one match is ErrAmbiguous.
func (rv *Resolver) Expand(name string) (string, bool, error) {
	if name == "HEAD" {
		branch, err := rv.Refs.Head()
		if err != nil || branch == "" {
			return "", false, err
		}
		return "refs/heads/" + branch, true, nil
	}

	candidates := []string{name}
	if !strings.HasPrefix(name, "refs/") {
		candidates = append(candidates, "refs/"+name, "refs/heads/"+name)
	}

	var matches []string
	for _, c := range candidates {
		if rv.Refs.Exists(c) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return "", false, nil
	case 1:
		return matches[0], true, nil
	default:
		return "", false, fmt.Errorf("%w: %s", ErrAmbiguous, name)
	}
}

// splitReflogSuffix splits "name@{N}" into its parts.
func splitReflogSuffix(expr string) (name string, ord int, ok bool) {
	i := strings.Index(expr, "@{")
	if i < 0 || !strings.HasSuffix(expr, "}") {
		return "", 0, false
	}
	n, err := strconv.Atoi(expr[i+2 : len(expr)-1])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return expr[:i], n, true
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
