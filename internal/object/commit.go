// Package object implements commit objects stored in the CAS.
//
// A commit references one tree and zero or more parent commits. The stash
// machinery leans on the parent list: a stash entry is persisted as a commit
// whose parents are [base, index] or [base, index, untracked].
//
// Canonical encoding is a git-like text form:
//
//	tree <hex>
//	parent <hex>      (repeated)
//	author <name> <unix> +0000
//	committer <name> <unix> +0000
//	<blank>
//	<message>
package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stashvcs/stash/internal/cas"
)

// Commit is a decoded commit object.
type Commit struct {
	Tree       cas.Hash
	Parents    []cas.Hash
	Author     string
	Committer  string
	AuthorTime time.Time
	CommitTime time.Time
	Message    string
}

// Subject returns the first line of the commit message.
func (c *Commit) Subject() string {
	if i := strings.IndexByte(c.Message, '\n'); i >= 0 {
		return c.Message[:i]
	}
	return c.Message
}

// Parent returns the n-th parent (1-based, matching revision suffix ^n).
func (c *Commit) Parent(n int) (cas.Hash, bool) {
	if n < 1 || n > len(c.Parents) {
		return cas.Hash{}, false
	}
	return c.Parents[n-1], true
}

// Store holds commit read/write operations over a CAS.
type Store struct {
	CAS cas.CAS
}

// NewStore creates a commit Store over the given CAS.
func NewStore(store cas.CAS) *Store {
	return &Store{CAS: store}
}

// Write encodes the commit, stores it, and returns its id.
func (s *Store) Write(c *Commit) (cas.Hash, error) {
	data := encode(c)
	hash := cas.Sum(data)
	if err := s.CAS.Put(hash, data); err != nil {
		return cas.Hash{}, fmt.Errorf("store commit: %w", err)
	}
	return hash, nil
}

// Commit builds and stores a commit in one step, the way most callers use it.
func (s *Store) Commit(treeHash cas.Hash, parents []cas.Hash, author, message string) (cas.Hash, error) {
	now := time.Now()
	return s.Write(&Commit{
		Tree:       treeHash,
		Parents:    parents,
		Author:     author,
		Committer:  author,
		AuthorTime: now,
		CommitTime: now,
		Message:    message,
	})
}

// Read loads and decodes a commit by id.
func (s *Store) Read(hash cas.Hash) (*Commit, error) {
	data, err := s.CAS.Get(hash)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash.Short(), err)
	}
	return decode(data)
}

func encode(c *Commit) []byte {
	var buf bytes.Buffer

	buf.WriteString("tree ")
	buf.WriteString(c.Tree.String())
	buf.WriteByte('\n')

	for _, p := range c.Parents {
		buf.WriteString("parent ")
		buf.WriteString(p.String())
		buf.WriteByte('\n')
	}

	fmt.Fprintf(&buf, "author %s %d +0000\n", c.Author, c.AuthorTime.Unix())
	fmt.Fprintf(&buf, "committer %s %d +0000\n", c.Committer, c.CommitTime.Unix())

	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	if !strings.HasSuffix(c.Message, "\n") {
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}

func decode(data []byte) (*Commit, error) {
	commit := &Commit{}

	lines := bytes.Split(data, []byte{'\n'})
	var messageStart int
	for i, line := range lines {
		if len(line) == 0 {
			messageStart = i + 1
			break
		}

		key, value, ok := strings.Cut(string(line), " ")
		if !ok {
			continue
		}

		switch key {
		case "tree":
			hash, err := cas.ParseHash(value)
			if err != nil {
				return nil, fmt.Errorf("invalid tree hash: %w", err)
			}
			commit.Tree = hash

		case "parent":
			hash, err := cas.ParseHash(value)
			if err != nil {
				return nil, fmt.Errorf("invalid parent hash: %w", err)
			}
			commit.Parents = append(commit.Parents, hash)

		case "author":
			name, at, err := parseIdent(value)
			if err != nil {
				return nil, fmt.Errorf("invalid author line: %w", err)
			}
			commit.Author = name
			commit.AuthorTime = at

		case "committer":
			name, at, err := parseIdent(value)
			if err != nil {
				return nil, fmt.Errorf("invalid committer line: %w", err)
			}
			commit.Committer = name
			commit.CommitTime = at
		}
	}

	if messageStart > 0 && messageStart < len(lines) {
		msg := bytes.Join(lines[messageStart:], []byte{'\n'})
		commit.Message = string(bytes.TrimSuffix(msg, []byte{'\n'}))
	}

	return commit, nil
}

// parseIdent splits "<name> <unix> <tz>" into name and time.
func parseIdent(s string) (string, time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return "", time.Time{}, fmt.Errorf("malformed ident %q", s)
	}

	// The timezone field is optional in older objects.
	tsField := len(fields) - 1
	if strings.HasPrefix(fields[tsField], "+") || strings.HasPrefix(fields[tsField], "-") {
		tsField--
	}

	ts, err := strconv.ParseInt(fields[tsField], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed timestamp in %q", s)
	}

	name := strings.Join(fields[:tsField], " ")
	return name, time.Unix(ts, 0), nil
}
