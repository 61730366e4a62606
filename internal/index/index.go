// Package index implements the index file: the authoritative record of
// staged state, plus the isolated scratch copies the stash machinery builds
// trees in.
//
// File Encoding:
//
//	"STIX" | uvarint(entryCount) | (path_len | path | blob[32] | mode | size | mtime_ns)*
//	| BLAKE3(preceding bytes)
//
// Mutations of the authoritative index go through Locked, which wraps the
// load/mutate/save cycle in an exclusive inter-process file lock and replaces
// the file atomically.
package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/stashvcs/stash/internal/cas"
	"github.com/stashvcs/stash/internal/tree"
)

// EnvIndexFile overrides the index path an operation targets. It redirects
// only the lookup done through DefaultPath; the repository's own index
// configuration is untouched.
const EnvIndexFile = "STASH_INDEX_FILE"

var magic = []byte("STIX")

// DefaultPath returns the index path for a repository dir, honoring the
// environment override.
func DefaultPath(stashDir string) string {
	if p := os.Getenv(EnvIndexFile); p != "" {
		return p
	}
	return stashDir + string(os.PathSeparator) + "index"
}

// Entry is one staged file.
type Entry struct {
	Path    string
	Blob    cas.Hash
	Mode    uint32
	Size    int64
	ModTime time.Time
}

// File is an in-memory index, bound to the path it was loaded from.
type File struct {
	path    string
	entries map[string]Entry
}

// Load reads an index file. A missing file yields an empty index.
func Load(path string) (*File, error) {
	f := &File{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	if err := f.decode(data); err != nil {
		return nil, fmt.Errorf("parse index %s: %w", path, err)
	}
	return f, nil
}

// Path returns the file path this index is bound to.
func (f *File) Path() string { return f.path }

// Len returns the number of entries.
func (f *File) Len() int { return len(f.entries) }

// Get returns the entry for a path, or nil.
func (f *File) Get(path string) *Entry {
	if e, ok := f.entries[path]; ok {
		return &e
	}
	return nil
}

// Set inserts or replaces an entry.
func (f *File) Set(e Entry) {
	f.entries[e.Path] = e
}

// Remove drops an entry by path.
func (f *File) Remove(path string) {
	delete(f.entries, path)
}

// Entries returns all entries sorted by path.
func (f *File) Entries() []Entry {
	out := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// WriteTree stores the index contents as a tree object.
func (f *File) WriteTree(b *tree.Builder) (tree.Ref, error) {
	entries := make([]tree.Entry, 0, len(f.entries))
	for _, e := range f.entries {
		entries = append(entries, tree.Entry{Path: e.Path, Blob: e.Blob, Mode: e.Mode, Size: e.Size})
	}
	return b.Build(entries)
}

// ReadTree replaces the index contents with a tree's entries.
func (f *File) ReadTree(l *tree.Loader, ref tree.Ref) error {
	entries, err := l.ListAll(ref)
	if err != nil {
		return fmt.Errorf("read tree into index: %w", err)
	}
	f.entries = make(map[string]Entry, len(entries))
	for _, e := range entries {
		f.entries[e.Path] = Entry{Path: e.Path, Blob: e.Blob, Mode: e.Mode, Size: e.Size}
	}
	return nil
}

// Save writes the index atomically: temp file, then rename.
func (f *File) Save() error {
	data := f.encode()
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// Locked runs fn against the index at path under an exclusive inter-process
// lock, saving the (possibly mutated) index before the lock is released.
// When fn fails, nothing is written.
func Locked(path string, fn func(*File) error) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock index: %w", err)
	}
	defer lock.Unlock()

	f, err := Load(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	return f.Save()
}

func (f *File) encode() []byte {
	var buf bytes.Buffer
	buf.Write(magic)

	scratch := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(scratch, uint64(len(f.entries)))
	buf.Write(scratch[:n])

	for _, e := range f.Entries() {
		n = binary.PutUvarint(scratch, uint64(len(e.Path)))
		buf.Write(scratch[:n])
		buf.WriteString(e.Path)
		buf.Write(e.Blob[:])
		n = binary.PutUvarint(scratch, uint64(e.Mode))
		buf.Write(scratch[:n])
		n = binary.PutUvarint(scratch, uint64(e.Size))
		buf.Write(scratch[:n])
		n = binary.PutUvarint(scratch, uint64(e.ModTime.UnixNano()))
		buf.Write(scratch[:n])
	}

	sum := cas.Sum(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes()
}

func (f *File) decode(data []byte) error {
	if len(data) < len(magic)+32 {
		return fmt.Errorf("truncated index")
	}
	if !bytes.Equal(data[:len(magic)], magic) {
		return fmt.Errorf("bad index magic")
	}

	body, sum := data[:len(data)-32], data[len(data)-32:]
	var want cas.Hash
	copy(want[:], sum)
	if cas.Sum(body) != want {
		return fmt.Errorf("index checksum mismatch")
	}

	buf := bytes.NewReader(body[len(magic):])
	count, err := binary.ReadUvarint(buf)
	if err != nil {
		return fmt.Errorf("read entry count: %w", err)
	}

	for i := uint64(0); i < count; i++ {
		pathLen, err := binary.ReadUvarint(buf)
		if err != nil {
			return fmt.Errorf("read path length: %w", err)
		}
		path := make([]byte, pathLen)
		if _, err := buf.Read(path); err != nil {
			return fmt.Errorf("read path: %w", err)
		}

		var blob cas.Hash
		if n, err := buf.Read(blob[:]); err != nil || n != 32 {
			return fmt.Errorf("read blob hash for %s", path)
		}
		mode, err := binary.ReadUvarint(buf)
		if err != nil {
			return fmt.Errorf("read mode: %w", err)
		}
		size, err := binary.ReadUvarint(buf)
		if err != nil {
			return fmt.Errorf("read size: %w", err)
		}
		mtime, err := binary.ReadUvarint(buf)
		if err != nil {
			return fmt.Errorf("read mtime: %w", err)
		}

		f.entries[string(path)] = Entry{
			Path:    string(path),
			Blob:    blob,
			Mode:    uint32(mode),
			Size:    int64(size),
			ModTime: time.Unix(0, int64(mtime)),
		}
	}

	return nil
}
