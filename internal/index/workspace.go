package index

import (
	"fmt"
	"os"
)

// Workspace is a scratch index scoped to a single logical operation. Its
// path is derived from the authoritative index path plus the process id, so
// concurrent invocations from different processes never collide. The scratch
// file must be removed on every exit path; Release is unconditional and safe
// to defer immediately after acquisition.
type Workspace struct {
	path string
}

// NewWorkspace derives a workspace for the given authoritative index path.
func NewWorkspace(indexPath string) *Workspace {
	return &Workspace{path: fmt.Sprintf("%s.stash.%d", indexPath, os.Getpid())}
}

// Path returns the scratch index path. All reads and writes of the scoped
// operation must target this path, never the authoritative index.
func (w *Workspace) Path() string { return w.path }

// Load reads the scratch index, empty when not yet written.
func (w *Workspace) Load() (*File, error) {
	return Load(w.path)
}

// Release removes the scratch file. Errors other than absence are ignored:
// release runs on failure paths where there is nothing left to report to.
func (w *Workspace) Release() {
	os.Remove(w.path)
}
