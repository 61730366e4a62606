// Package cas provides content-addressable object storage keyed by BLAKE3-256.
//
// Two implementations are provided:
// - MemoryCAS: in-memory map, used by tests and short-lived operations
// - DiskCAS: two-level fan-out directory of zstd-compressed objects
package cas

import (
	"encoding/hex"
	"fmt"
	"sync"

	"lukechampine.com/blake3"
)

// Hash is a BLAKE3-256 object id.
type Hash [32]byte

// String returns the hexadecimal form of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the abbreviated hex form used in messages.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:])[:10]
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Sum computes the BLAKE3 hash of data.
func Sum(data []byte) Hash {
	return blake3.Sum256(data)
}

// ParseHash decodes a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 64 {
		return h, fmt.Errorf("invalid hash length %d", len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hash: %w", err)
	}
	copy(h[:], raw)
	return h, nil
}

// CAS is the object store interface.
type CAS interface {
	// Put stores data keyed by its hash.
	Put(hash Hash, data []byte) error

	// Get retrieves data by its hash.
	Get(hash Hash) ([]byte, error)

	// Has checks whether an object exists.
	Has(hash Hash) (bool, error)
}

// MemoryCAS implements CAS with an in-memory map.
type MemoryCAS struct {
	mu   sync.RWMutex
	data map[Hash][]byte
}

// NewMemoryCAS creates an empty in-memory CAS.
func NewMemoryCAS() *MemoryCAS {
	return &MemoryCAS{data: make(map[Hash][]byte)}
}

// Put implements CAS.Put.
func (m *MemoryCAS) Put(hash Hash, data []byte) error {
	if computed := Sum(data); computed != hash {
		return fmt.Errorf("hash mismatch: expected %s, got %s", hash, computed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[hash] = cp
	return nil
}

// Get implements CAS.Get.
func (m *MemoryCAS) Get(hash Hash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[hash]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", hash)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Has implements CAS.Has.
func (m *MemoryCAS) Has(hash Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[hash]
	return ok, nil
}

// Len returns the number of stored objects.
func (m *MemoryCAS) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
