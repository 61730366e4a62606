package cas

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// DiskCAS implements CAS on the filesystem. Objects are stored
// zstd-compressed under a two-level fan-out (ab/cdef...) so no single
// directory grows unbounded.
type DiskCAS struct {
	root string
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// NewDiskCAS creates an on-disk CAS rooted at the given directory.
func NewDiskCAS(root string) (*DiskCAS, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}

	return &DiskCAS{root: root, enc: enc, dec: dec}, nil
}

// objectPath returns the fan-out path for a hash.
func (d *DiskCAS) objectPath(hash Hash) string {
	hx := hash.String()
	return filepath.Join(d.root, hx[:2], hx[2:])
}

// Put implements CAS.Put. The write is atomic: a temp file is renamed
// into place, and an existing object is never rewritten.
func (d *DiskCAS) Put(hash Hash, data []byte) error {
	if computed := Sum(data); computed != hash {
		return fmt.Errorf("hash mismatch: expected %s, got %s", hash, computed)
	}

	path := d.objectPath(hash)
	if _, err := os.Stat(path); err == nil {
		return nil // content-addressed, already present
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create fan-out dir: %w", err)
	}

	compressed := d.enc.EncodeAll(data, nil)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize object: %w", err)
	}
	return nil
}

// Get implements CAS.Get.
func (d *DiskCAS) Get(hash Hash) ([]byte, error) {
	compressed, err := os.ReadFile(d.objectPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", hash)
		}
		return nil, fmt.Errorf("read object: %w", err)
	}

	data, err := d.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress object %s: %w", hash, err)
	}

	if computed := Sum(data); computed != hash {
		return nil, fmt.Errorf("corrupt object: hash mismatch for %s", hash)
	}
	return data, nil
}

// Has implements CAS.Has.
func (d *DiskCAS) Has(hash Hash) (bool, error) {
	_, err := os.Stat(d.objectPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}
