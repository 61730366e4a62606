package tree

import "sort"

// ChangeType classifies a single entry change between two trees.
type ChangeType uint8

const (
	Added ChangeType = iota + 1
	Modified
	Removed
)

// Change is one path's difference between two trees.
type Change struct {
	Type ChangeType
	Path string
	Old  *Entry // nil for Added
	New  *Entry // nil for Removed
}

// Diff computes the entry-level differences from old to new, sorted by path.
func (l *Loader) Diff(oldRef, newRef Ref) ([]Change, error) {
	oldEntries, err := l.ListAll(oldRef)
	if err != nil {
		return nil, err
	}
	newEntries, err := l.ListAll(newRef)
	if err != nil {
		return nil, err
	}

	oldMap := make(map[string]*Entry, len(oldEntries))
	for i := range oldEntries {
		oldMap[oldEntries[i].Path] = &oldEntries[i]
	}
	newMap := make(map[string]*Entry, len(newEntries))
	for i := range newEntries {
		newMap[newEntries[i].Path] = &newEntries[i]
	}

	var changes []Change
	for i := range newEntries {
		ne := &newEntries[i]
		oe, ok := oldMap[ne.Path]
		switch {
		case !ok:
			changes = append(changes, Change{Type: Added, Path: ne.Path, New: ne})
		case oe.Blob != ne.Blob || oe.Mode != ne.Mode:
			changes = append(changes, Change{Type: Modified, Path: ne.Path, Old: oe, New: ne})
		}
	}
	for i := range oldEntries {
		oe := &oldEntries[i]
		if _, ok := newMap[oe.Path]; !ok {
			changes = append(changes, Change{Type: Removed, Path: oe.Path, Old: oe})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}
