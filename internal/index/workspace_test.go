package index

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestWorkspacePathIsPerProcess(t *testing.T) {
	base := filepath.Join(t.TempDir(), "index")
	ws := NewWorkspace(base)

	want := fmt.Sprintf("%s.stash.%d", base, os.Getpid())
	if ws.Path() != want {
		t.Errorf("workspace path = %q, want %q", ws.Path(), want)
	}
	if ws.Path() == base {
		t.Error("workspace path must differ from the authoritative index path")
	}
}

func TestWorkspaceLifecycle(t *testing.T) {
	base := filepath.Join(t.TempDir(), "index")
	ws := NewWorkspace(base)

	f, err := ws.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	f.Set(testIndexEntry("scratch.txt", "scratch"))
	if err := f.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(ws.Path()); err != nil {
		t.Fatalf("scratch file missing after Save: %v", err)
	}
	if _, err := os.Stat(base); !os.IsNotExist(err) {
		t.Error("workspace write leaked into the authoritative index path")
	}

	ws.Release()
	if _, err := os.Stat(ws.Path()); !os.IsNotExist(err) {
		t.Error("Release left the scratch file behind")
	}

	// Release is unconditional and repeatable.
	ws.Release()
}
