package merge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileConflict records one conflicted path from a merge.
type FileConflict struct {
	Path       string     `json:"path"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Record captures the state of a conflicted merge so it can be inspected
// and resumed. It is written when a restore hits conflicts and removed once
// the user resolves them.
type Record struct {
	Ancestor  string                   `json:"ancestor"`
	Current   string                   `json:"current"`
	Incoming  string                   `json:"incoming"`
	Files     map[string]*FileConflict `json:"files"`
	CreatedAt time.Time                `json:"created_at"`
}

// NewRecord creates a Record for a conflicted merge of the three commits.
func NewRecord(ancestor, current, incoming string, conflicts []string) *Record {
	r := &Record{
		Ancestor:  ancestor,
		Current:   current,
		Incoming:  incoming,
		Files:     make(map[string]*FileConflict),
		CreatedAt: time.Now(),
	}
	for _, p := range conflicts {
		r.Files[p] = &FileConflict{Path: p}
	}
	return r
}

// Unresolved returns paths that still carry conflicts.
func (r *Record) Unresolved() []string {
	var out []string
	for p, f := range r.Files {
		if !f.Resolved {
			out = append(out, p)
		}
	}
	return out
}

// MarkResolved flags a path as resolved.
func (r *Record) MarkResolved(path string) {
	if f, ok := r.Files[path]; ok {
		now := time.Now()
		f.Resolved = true
		f.ResolvedAt = &now
	}
}

// RecordStore persists merge records under the repository metadata
// directory.
type RecordStore struct {
	dir string
}

// NewRecordStore creates a RecordStore rooted at the metadata directory.
func NewRecordStore(dir string) *RecordStore {
	return &RecordStore{dir: dir}
}

func (rs *RecordStore) path() string {
	return filepath.Join(rs.dir, "MERGE_RECORD")
}

// Save writes the record to disk.
func (rs *RecordStore) Save(r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode merge record: %w", err)
	}
	if err := os.WriteFile(rs.path(), data, 0644); err != nil {
		return fmt.Errorf("write merge record: %w", err)
	}
	return nil
}

// Load reads the current record. A missing file returns (nil, nil).
func (rs *RecordStore) Load() (*Record, error) {
	data, err := os.ReadFile(rs.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read merge record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode merge record: %w", err)
	}
	return &r, nil
}

// Exists reports whether a merge record is present.
func (rs *RecordStore) Exists() bool {
	_, err := os.Stat(rs.path())
	return err == nil
}

// Delete removes the record. Deleting an absent record is not an error.
func (rs *RecordStore) Delete() error {
	if err := os.Remove(rs.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete merge record: %w", err)
	}
	return nil
}
