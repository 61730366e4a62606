package stash

import (
	"errors"
	"fmt"
)

// ErrNoChanges is the soft signal that there is nothing to save. It is not
// a failure: no objects are written and the stack is untouched.
var ErrNoChanges = errors.New("no local changes to save")

// ErrNothingSelected is the patch-mode counterpart of ErrNoChanges: the
// user declined every hunk, so no entry is created.
var ErrNothingSelected = errors.New("no changes selected")

// UsageError reports bad arguments. The command dispatcher prints usage
// text and exits nonzero.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// Usagef builds a UsageError.
func Usagef(format string, args ...interface{}) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// InvariantViolation reports a revision that resolved but does not have the
// commit shape of a stash entry. It is fatal: callers must not attempt
// recovery, and the dispatcher exits with code 128.
type InvariantViolation struct {
	Revision string
	Err      error
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("'%s' is not a stash-like commit", e.Revision)
}

func (e *InvariantViolation) Unwrap() error { return e.Err }

// ConflictError reports a restore that hit merge conflicts. The working
// tree carries conflict markers and the entry is preserved.
type ConflictError struct {
	Paths []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merge conflicts in %d file(s)", len(e.Paths))
}

// RefUpdateError reports a lost compare-and-swap race on the stack ref. The
// operation aborts with no partial stack mutation.
type RefUpdateError struct {
	Ref string
	Err error
}

func (e *RefUpdateError) Error() string {
	return fmt.Sprintf("could not update %s: %v", e.Ref, e.Err)
}

func (e *RefUpdateError) Unwrap() error { return e.Err }
