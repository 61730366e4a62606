// Package tree implements the tree object: a flat, sorted Merkle index of
// path -> blob entries. Every snapshot the stash machinery works with (base,
// index, worktree, untracked) is a tree.
//
// Canonical Encoding:
// - Leaf: 0x00 | uvarint(entryCount) | (path_len | path | blob[32] | mode | size)*
// - Internal: 0x01 | uvarint(childCount) | childHash[32] * childCount | separator_keys
// - Hash: BLAKE3(canonicalBytes)
package tree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/stashvcs/stash/internal/cas"
)

// Entry is a single tracked file inside a tree.
type Entry struct {
	Path string   // repo-relative path, forward slashes
	Blob cas.Hash // hash of the file content blob
	Mode uint32   // file mode bits
	Size int64    // content size in bytes
}

// Ref identifies a stored tree.
type Ref struct {
	Hash  cas.Hash
	Count int // total number of entries
}

// node is the decoded form of a stored tree node.
type node struct {
	isLeaf     bool
	entries    []Entry
	children   []cas.Hash
	separators []string
}

const leafFanout = 64

// Builder writes trees into a CAS.
type Builder struct {
	CAS cas.CAS
}

// NewBuilder creates a Builder over the given CAS.
func NewBuilder(store cas.CAS) *Builder {
	return &Builder{CAS: store}
}

// Build stores the given entries as a tree and returns its Ref.
// Entries are sorted by path, so equal content always yields equal hashes.
func (b *Builder) Build(entries []Entry) (Ref, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	return b.buildNode(sorted)
}

func (b *Builder) buildNode(entries []Entry) (Ref, error) {
	if len(entries) <= leafFanout {
		return b.writeLeaf(entries)
	}

	chunk := (len(entries) + leafFanout - 1) / ((len(entries) + leafFanout - 1) / leafFanout)
	if chunk < 1 {
		chunk = 1
	}

	var children []Ref
	var separators []string
	for i := 0; i < len(entries); i += chunk {
		end := i + chunk
		if end > len(entries) {
			end = len(entries)
		}
		child, err := b.buildNode(entries[i:end])
		if err != nil {
			return Ref{}, err
		}
		children = append(children, child)
		if end < len(entries) {
			separators = append(separators, entries[end].Path)
		}
	}

	return b.writeInternal(children, separators)
}

func (b *Builder) writeLeaf(entries []Entry) (Ref, error) {
	var buf bytes.Buffer
	buf.WriteByte(0x00)

	scratch := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(scratch, uint64(len(entries)))
	buf.Write(scratch[:n])

	for _, e := range entries {
		n = binary.PutUvarint(scratch, uint64(len(e.Path)))
		buf.Write(scratch[:n])
		buf.WriteString(e.Path)
		buf.Write(e.Blob[:])
		n = binary.PutUvarint(scratch, uint64(e.Mode))
		buf.Write(scratch[:n])
		n = binary.PutUvarint(scratch, uint64(e.Size))
		buf.Write(scratch[:n])
	}

	canonical := buf.Bytes()
	hash := cas.Sum(canonical)
	if err := b.CAS.Put(hash, canonical); err != nil {
		return Ref{}, fmt.Errorf("store tree leaf: %w", err)
	}
	return Ref{Hash: hash, Count: len(entries)}, nil
}

func (b *Builder) writeInternal(children []Ref, separators []string) (Ref, error) {
	var buf bytes.Buffer
	buf.WriteByte(0x01)

	scratch := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(scratch, uint64(len(children)))
	buf.Write(scratch[:n])

	total := 0
	for _, child := range children {
		buf.Write(child.Hash[:])
		total += child.Count
	}
	for _, sep := range separators {
		n = binary.PutUvarint(scratch, uint64(len(sep)))
		buf.Write(scratch[:n])
		buf.WriteString(sep)
	}

	canonical := buf.Bytes()
	hash := cas.Sum(canonical)
	if err := b.CAS.Put(hash, canonical); err != nil {
		return Ref{}, fmt.Errorf("store tree node: %w", err)
	}
	return Ref{Hash: hash, Count: total}, nil
}

// Loader reads trees back out of a CAS.
type Loader struct {
	CAS cas.CAS
}

// NewLoader creates a Loader over the given CAS.
func NewLoader(store cas.CAS) *Loader {
	return &Loader{CAS: store}
}

// Load resolves a bare tree hash into a Ref with its entry count.
func (l *Loader) Load(hash cas.Hash) (Ref, error) {
	entries, err := l.list(hash)
	if err != nil {
		return Ref{}, err
	}
	return Ref{Hash: hash, Count: len(entries)}, nil
}

// ListAll returns every entry of the tree, sorted by path.
func (l *Loader) ListAll(ref Ref) ([]Entry, error) {
	return l.list(ref.Hash)
}

// Lookup finds a single entry by exact path. Returns nil when absent.
func (l *Loader) Lookup(ref Ref, path string) (*Entry, error) {
	nd, err := l.readNode(ref.Hash)
	if err != nil {
		return nil, err
	}

	for !nd.isLeaf {
		idx := len(nd.separators)
		for i, sep := range nd.separators {
			if path < sep {
				idx = i
				break
			}
		}
		nd, err = l.readNode(nd.children[idx])
		if err != nil {
			return nil, err
		}
	}

	for i := range nd.entries {
		if nd.entries[i].Path == path {
			e := nd.entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

// Walk calls fn for every entry in path order.
func (l *Loader) Walk(ref Ref, fn func(Entry) error) error {
	return l.walk(ref.Hash, fn)
}

func (l *Loader) list(hash cas.Hash) ([]Entry, error) {
	var out []Entry
	err := l.walk(hash, func(e Entry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

func (l *Loader) walk(hash cas.Hash, fn func(Entry) error) error {
	nd, err := l.readNode(hash)
	if err != nil {
		return err
	}

	if nd.isLeaf {
		for _, e := range nd.entries {
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	}

	for _, child := range nd.children {
		if err := l.walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) readNode(hash cas.Hash) (*node, error) {
	data, err := l.CAS.Get(hash)
	if err != nil {
		return nil, fmt.Errorf("read tree node: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty tree node %s", hash)
	}

	switch data[0] {
	case 0x00:
		return decodeLeaf(data)
	case 0x01:
		return decodeInternal(data)
	default:
		return nil, fmt.Errorf("unknown tree node marker %02x", data[0])
	}
}

func decodeLeaf(data []byte) (*node, error) {
	buf := bytes.NewReader(data[1:])

	count, err := binary.ReadUvarint(buf)
	if err != nil {
		return nil, fmt.Errorf("read entry count: %w", err)
	}

	entries := make([]Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		pathLen, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("read path length: %w", err)
		}
		path := make([]byte, pathLen)
		if _, err := buf.Read(path); err != nil {
			return nil, fmt.Errorf("read path: %w", err)
		}

		var blob cas.Hash
		if n, err := buf.Read(blob[:]); err != nil || n != 32 {
			return nil, fmt.Errorf("read blob hash for %s", path)
		}

		mode, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("read mode: %w", err)
		}
		size, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("read size: %w", err)
		}

		entries = append(entries, Entry{
			Path: string(path),
			Blob: blob,
			Mode: uint32(mode),
			Size: int64(size),
		})
	}

	return &node{isLeaf: true, entries: entries}, nil
}

func decodeInternal(data []byte) (*node, error) {
	buf := bytes.NewReader(data[1:])

	count, err := binary.ReadUvarint(buf)
	if err != nil {
		return nil, fmt.Errorf("read child count: %w", err)
	}

	children := make([]cas.Hash, count)
	for i := uint64(0); i < count; i++ {
		if n, err := buf.Read(children[i][:]); err != nil || n != 32 {
			return nil, fmt.Errorf("read child hash %d", i)
		}
	}

	var separators []string
	for i := uint64(1); i < count; i++ {
		sepLen, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("read separator length: %w", err)
		}
		sep := make([]byte, sepLen)
		if _, err := buf.Read(sep); err != nil {
			return nil, fmt.Errorf("read separator: %w", err)
		}
		separators = append(separators, string(sep))
	}

	return &node{children: children, separators: separators}, nil
}
