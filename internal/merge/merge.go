// Package merge implements three-way merging of tree snapshots.
//
// Merging works at two levels. Tree-level case analysis resolves paths
// touched on only one side without reading file content. When both sides
// changed the same path, the content of the two versions is merged line by
// line against the common ancestor; irreconcilable edits produce conflict
// markers in the result instead of failing the whole merge.
package merge

import (
	"fmt"
	"sort"

	"github.com/stashvcs/stash/internal/cas"
	"github.com/stashvcs/stash/internal/tree"
)

// Labels names the three sides in conflict markers.
type Labels struct {
	Ancestor string
	Current  string
	Incoming string
}

// FileResult is the merge outcome for a single path.
type FileResult struct {
	Path       string
	Conflicted bool
	Entry      *tree.Entry // nil when the merged outcome is deletion
	Content    []byte      // marker-annotated content when Conflicted
}

// Result is the outcome of a tree merge.
type Result struct {
	Clean     bool
	Tree      tree.Ref // merged tree, valid only when Clean
	Files     []FileResult
	Conflicts []string // conflicted paths, sorted
}

// Merger performs three-way merges over an object store.
type Merger struct {
	CAS    cas.CAS
	Labels Labels
}

// NewMerger creates a Merger with the given conflict labels.
func NewMerger(store cas.CAS, labels Labels) *Merger {
	return &Merger{CAS: store, Labels: labels}
}

// MergeTrees merges current and incoming against their common ancestor.
// Paths changed on a single side resolve without content inspection; paths
// changed on both sides go through content-level merge. Conflicted paths
// get marker-annotated content in the result and the merge reports unclean,
// but every non-conflicted path is still merged.
func (m *Merger) MergeTrees(ancestor, current, incoming tree.Ref) (*Result, error) {
	loader := tree.NewLoader(m.CAS)

	base, err := entryMap(loader, ancestor)
	if err != nil {
		return nil, fmt.Errorf("load ancestor tree: %w", err)
	}
	ours, err := entryMap(loader, current)
	if err != nil {
		return nil, fmt.Errorf("load current tree: %w", err)
	}
	theirs, err := entryMap(loader, incoming)
	if err != nil {
		return nil, fmt.Errorf("load incoming tree: %w", err)
	}

	paths := make(map[string]bool)
	for p := range base {
		paths[p] = true
	}
	for p := range ours {
		paths[p] = true
	}
	for p := range theirs {
		paths[p] = true
	}

	result := &Result{}
	for p := range paths {
		fr, err := m.mergePath(p, base[p], ours[p], theirs[p])
		if err != nil {
			return nil, err
		}
		if fr == nil {
			continue
		}
		result.Files = append(result.Files, *fr)
		if fr.Conflicted {
			result.Conflicts = append(result.Conflicts, p)
		}
	}
	sort.Slice(result.Files, func(i, j int) bool { return result.Files[i].Path < result.Files[j].Path })
	sort.Strings(result.Conflicts)

	if len(result.Conflicts) > 0 {
		return result, nil
	}

	builder := tree.NewBuilder(m.CAS)
	var merged []tree.Entry
	for _, fr := range result.Files {
		if fr.Entry != nil {
			merged = append(merged, *fr.Entry)
		}
	}
	ref, err := builder.Build(merged)
	if err != nil {
		return nil, fmt.Errorf("build merged tree: %w", err)
	}
	result.Clean = true
	result.Tree = ref
	return result, nil
}

// mergePath resolves a single path. A nil result means the path is absent
// from the merged outcome and was absent from the ancestor too, so there is
// nothing to report.
func (m *Merger) mergePath(path string, base, ours, theirs *tree.Entry) (*FileResult, error) {
	switch {
	case base == nil && ours == nil && theirs == nil:
		return nil, nil

	case base == nil && ours != nil && theirs == nil:
		return &FileResult{Path: path, Entry: ours}, nil

	case base == nil && ours == nil && theirs != nil:
		return &FileResult{Path: path, Entry: theirs}, nil

	case base == nil && ours != nil && theirs != nil:
		// Added on both sides.
		if ours.Blob == theirs.Blob {
			return &FileResult{Path: path, Entry: ours}, nil
		}
		return m.mergeContent(path, nil, ours, theirs)

	case base != nil && ours == nil && theirs == nil:
		// Deleted on both sides.
		return &FileResult{Path: path}, nil

	case base != nil && ours != nil && theirs == nil:
		if base.Blob == ours.Blob {
			// Unchanged here, deleted there.
			return &FileResult{Path: path}, nil
		}
		return m.deleteConflict(path, ours)

	case base != nil && ours == nil && theirs != nil:
		if base.Blob == theirs.Blob {
			return &FileResult{Path: path}, nil
		}
		return m.deleteConflict(path, theirs)

	default:
		// Present in all three versions.
		if ours.Blob == theirs.Blob {
			return &FileResult{Path: path, Entry: ours}, nil
		}
		if base.Blob == ours.Blob {
			return &FileResult{Path: path, Entry: theirs}, nil
		}
		if base.Blob == theirs.Blob {
			return &FileResult{Path: path, Entry: ours}, nil
		}
		return m.mergeContent(path, base, ours, theirs)
	}
}

// mergeContent merges the content of two changed versions of a path.
func (m *Merger) mergeContent(path string, base, ours, theirs *tree.Entry) (*FileResult, error) {
	var baseData []byte
	if base != nil {
		var err error
		baseData, err = m.CAS.Get(base.Blob)
		if err != nil {
			return nil, fmt.Errorf("load ancestor content for %s: %w", path, err)
		}
	}
	oursData, err := m.CAS.Get(ours.Blob)
	if err != nil {
		return nil, fmt.Errorf("load current content for %s: %w", path, err)
	}
	theirsData, err := m.CAS.Get(theirs.Blob)
	if err != nil {
		return nil, fmt.Errorf("load incoming content for %s: %w", path, err)
	}

	merged, clean := mergeLines(baseData, oursData, theirsData, m.Labels)
	blob := cas.Sum(merged)
	if err := m.CAS.Put(blob, merged); err != nil {
		return nil, fmt.Errorf("store merged content for %s: %w", path, err)
	}

	entry := &tree.Entry{Path: path, Blob: blob, Mode: ours.Mode, Size: int64(len(merged))}
	if clean {
		return &FileResult{Path: path, Entry: entry}, nil
	}
	return &FileResult{Path: path, Conflicted: true, Entry: entry, Content: merged}, nil
}

// deleteConflict marks a modify/delete conflict. The surviving side's
// content is kept so the user does not lose the modification.
func (m *Merger) deleteConflict(path string, kept *tree.Entry) (*FileResult, error) {
	content, err := m.CAS.Get(kept.Blob)
	if err != nil {
		return nil, fmt.Errorf("load content for %s: %w", path, err)
	}
	return &FileResult{Path: path, Conflicted: true, Entry: kept, Content: content}, nil
}

func entryMap(loader *tree.Loader, ref tree.Ref) (map[string]*tree.Entry, error) {
	out := make(map[string]*tree.Entry)
	if ref.Count == 0 {
		return out, nil
	}
	entries, err := loader.ListAll(ref)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		out[entries[i].Path] = &entries[i]
	}
	return out, nil
}
