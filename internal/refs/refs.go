// Package refs manages references and their reflogs.
//
// Refs live in a bbolt database so that every update runs inside a
// transaction: the expected old value is re-read and verified immediately
// before the replace, and a lost race between two processes surfaces as
// ErrStale instead of a silent overwrite.
package refs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/stashvcs/stash/internal/cas"
)

// Bucket layout.
var (
	bucketRefs    = []byte("refs")    // ref name -> commit hash hex
	bucketReflogs = []byte("reflogs") // per-ref nested bucket: seq(8BE) -> entry line
)

// ErrStale is returned when a compare-and-swap ref update loses a race.
var ErrStale = errors.New("ref changed concurrently")

// ErrNotFound is returned for refs and reflog entries that do not exist.
var ErrNotFound = errors.New("ref not found")

// LogEntry is one reflog line of a ref.
type LogEntry struct {
	Old     cas.Hash // zero when the entry created the ref
	New     cas.Hash
	Time    time.Time
	Message string
}

// Store is the ref database plus the HEAD file beside it.
type Store struct {
	dir string
	db  *bbolt.DB
}

// Open opens (creating if needed) the ref database under dir.
func Open(dir string) (*Store, error) {
	db, err := bbolt.Open(filepath.Join(dir, "refs.db"), 0666, nil)
	if err != nil {
		return nil, fmt.Errorf("open ref db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, e := tx.CreateBucketIfNotExists(bucketRefs); e != nil {
			return e
		}
		if _, e := tx.CreateBucketIfNotExists(bucketReflogs); e != nil {
			return e
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init ref buckets: %w", err)
	}

	return &Store{dir: dir, db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the commit a ref points at, or ErrNotFound.
func (s *Store) Lookup(name string) (cas.Hash, error) {
	var hash cas.Hash
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRefs).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		h, err := cas.ParseHash(string(v))
		if err != nil {
			return fmt.Errorf("corrupt ref %s: %w", name, err)
		}
		hash = h
		return nil
	})
	return hash, err
}

// Exists reports whether a ref is present.
func (s *Store) Exists(name string) bool {
	_, err := s.Lookup(name)
	return err == nil
}

// Update repoints a ref, verifying expectOld first when non-nil (nil skips
// the check). A reflog entry is appended when the ref already has a log or
// forceLog is set.
func (s *Store) Update(name string, newHash cas.Hash, expectOld *cas.Hash, message string, forceLog bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		refsBkt := tx.Bucket(bucketRefs)
		key := []byte(name)

		var cur cas.Hash
		if v := refsBkt.Get(key); v != nil {
			h, err := cas.ParseHash(string(v))
			if err != nil {
				return fmt.Errorf("corrupt ref %s: %w", name, err)
			}
			cur = h
		}

		if expectOld != nil && cur != *expectOld {
			return fmt.Errorf("update %s: %w", name, ErrStale)
		}

		if err := refsBkt.Put(key, []byte(newHash.String())); err != nil {
			return fmt.Errorf("write ref %s: %w", name, err)
		}

		logs := tx.Bucket(bucketReflogs)
		refLog := logs.Bucket(key)
		if refLog == nil && !forceLog {
			return nil
		}
		if refLog == nil {
			var err error
			refLog, err = logs.CreateBucket(key)
			if err != nil {
				return fmt.Errorf("create reflog for %s: %w", name, err)
			}
		}

		seq, err := refLog.NextSequence()
		if err != nil {
			return fmt.Errorf("reflog sequence for %s: %w", name, err)
		}
		entry := LogEntry{Old: cur, New: newHash, Time: time.Now(), Message: message}
		return refLog.Put(seqKey(seq), encodeEntry(entry))
	})
}

// Delete removes a ref and its reflog. expectOld, when non-nil, must match
// the current value. Deleting an absent ref is not an error.
func (s *Store) Delete(name string, expectOld *cas.Hash) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		refsBkt := tx.Bucket(bucketRefs)
		key := []byte(name)

		v := refsBkt.Get(key)
		if v == nil {
			return nil
		}
		if expectOld != nil {
			cur, err := cas.ParseHash(string(v))
			if err != nil {
				return fmt.Errorf("corrupt ref %s: %w", name, err)
			}
			if cur != *expectOld {
				return fmt.Errorf("delete %s: %w", name, ErrStale)
			}
		}

		if err := refsBkt.Delete(key); err != nil {
			return fmt.Errorf("delete ref %s: %w", name, err)
		}
		logs := tx.Bucket(bucketReflogs)
		if logs.Bucket(key) != nil {
			if err := logs.DeleteBucket(key); err != nil {
				return fmt.Errorf("delete reflog for %s: %w", name, err)
			}
		}
		return nil
	})
}

// Log returns the reflog of a ref, newest first, so index 0 is name@{0}.
func (s *Store) Log(name string) ([]LogEntry, error) {
	var entries []LogEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		refLog := tx.Bucket(bucketReflogs).Bucket([]byte(name))
		if refLog == nil {
			return nil
		}
		c := refLog.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			e, err := decodeEntry(v)
			if err != nil {
				return fmt.Errorf("corrupt reflog entry in %s: %w", name, err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

// LogAt returns the n-th reflog predecessor of a ref (0 = most recent).
func (s *Store) LogAt(name string, n int) (LogEntry, error) {
	entries, err := s.Log(name)
	if err != nil {
		return LogEntry{}, err
	}
	if n < 0 || n >= len(entries) {
		return LogEntry{}, fmt.Errorf("%w: %s@{%d}", ErrNotFound, name, n)
	}
	return entries[n], nil
}

// DropLogEntry deletes reflog entry n (0 = newest), rewrites the old-value
// chain of the adjacent newer entry, and repoints the ref at the resulting
// tip. When the log empties the ref is removed with it: a ref must never
// exist with an empty reflog. Returns the number of remaining entries.
func (s *Store) DropLogEntry(name string, n int) (int, error) {
	remaining := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		logs := tx.Bucket(bucketReflogs)
		key := []byte(name)
		refLog := logs.Bucket(key)
		if refLog == nil {
			return fmt.Errorf("%w: reflog of %s", ErrNotFound, name)
		}

		// Collect keys newest first.
		var keys [][]byte
		var vals [][]byte
		c := refLog.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			keys = append(keys, append([]byte(nil), k...))
			vals = append(vals, append([]byte(nil), v...))
		}
		if n < 0 || n >= len(keys) {
			return fmt.Errorf("%w: %s@{%d}", ErrNotFound, name, n)
		}

		dropped, err := decodeEntry(vals[n])
		if err != nil {
			return fmt.Errorf("corrupt reflog entry in %s: %w", name, err)
		}

		if err := refLog.Delete(keys[n]); err != nil {
			return fmt.Errorf("delete reflog entry: %w", err)
		}

		// Rewrite: the entry just above the hole now descends from the
		// dropped entry's predecessor.
		if n > 0 {
			newer, err := decodeEntry(vals[n-1])
			if err != nil {
				return fmt.Errorf("corrupt reflog entry in %s: %w", name, err)
			}
			newer.Old = dropped.Old
			if err := refLog.Put(keys[n-1], encodeEntry(newer)); err != nil {
				return fmt.Errorf("rewrite reflog entry: %w", err)
			}
		}

		remaining = len(keys) - 1
		refsBkt := tx.Bucket(bucketRefs)
		if remaining == 0 {
			if err := refsBkt.Delete(key); err != nil {
				return fmt.Errorf("delete ref %s: %w", name, err)
			}
			return logs.DeleteBucket(key)
		}

		// Repoint the ref at the new tip.
		k, v := refLog.Cursor().Last()
		if k == nil {
			return fmt.Errorf("reflog of %s unexpectedly empty", name)
		}
		tip, err := decodeEntry(v)
		if err != nil {
			return fmt.Errorf("corrupt reflog entry in %s: %w", name, err)
		}
		return refsBkt.Put(key, []byte(tip.New.String()))
	})
	return remaining, err
}

// Head returns the branch name HEAD points at, or "" when detached/absent.
func (s *Store) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "HEAD"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if rest, ok := strings.CutPrefix(content, "ref: refs/heads/"); ok {
		return rest, nil
	}
	return "", nil
}

// SetHead points HEAD at a branch.
func (s *Store) SetHead(branch string) error {
	content := fmt.Sprintf("ref: refs/heads/%s\n", branch)
	return os.WriteFile(filepath.Join(s.dir, "HEAD"), []byte(content), 0644)
}

// HeadCommit resolves HEAD to a commit id, or ErrNotFound before the first
// commit.
func (s *Store) HeadCommit() (cas.Hash, error) {
	branch, err := s.Head()
	if err != nil {
		return cas.Hash{}, err
	}
	if branch == "" {
		return cas.Hash{}, fmt.Errorf("%w: HEAD", ErrNotFound)
	}
	return s.Lookup("refs/heads/" + branch)
}

// Entry line format: "old_hex new_hex unix_ts message".

func encodeEntry(e LogEntry) []byte {
	return []byte(fmt.Sprintf("%s %s %d %s", e.Old, e.New, e.Time.Unix(), e.Message))
}

func decodeEntry(data []byte) (LogEntry, error) {
	parts := strings.SplitN(string(data), " ", 4)
	if len(parts) < 3 {
		return LogEntry{}, fmt.Errorf("malformed entry %q", data)
	}

	old, err := cas.ParseHash(parts[0])
	if err != nil {
		return LogEntry{}, fmt.Errorf("old hash: %w", err)
	}
	newer, err := cas.ParseHash(parts[1])
	if err != nil {
		return LogEntry{}, fmt.Errorf("new hash: %w", err)
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return LogEntry{}, fmt.Errorf("timestamp: %w", err)
	}

	entry := LogEntry{Old: old, New: newer, Time: time.Unix(ts, 0)}
	if len(parts) == 4 {
		entry.Message = parts[3]
	}
	return entry, nil
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}
