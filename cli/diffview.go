package cli

import (
	"fmt"
	"strings"

	"github.com/stashvcs/stash/internal/merge"
	"github.com/stashvcs/stash/internal/stash"
	"github.com/stashvcs/stash/internal/tree"
)

// renderPatch formats tree changes as a unified-style patch.
func renderPatch(ctx *stash.Context, changes []tree.Change) (string, error) {
	var b strings.Builder

	for _, c := range changes {
		var oldText, newText []byte
		if c.Old != nil {
			data, err := ctx.Repo.Objects.Get(c.Old.Blob)
			if err != nil {
				return "", fmt.Errorf("load old content for %s: %w", c.Path, err)
			}
			oldText = data
		}
		if c.New != nil {
			data, err := ctx.Repo.Objects.Get(c.New.Blob)
			if err != nil {
				return "", fmt.Errorf("load new content for %s: %w", c.Path, err)
			}
			newText = data
		}

		fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", c.Path, c.Path)
		delta := 0
		for _, h := range merge.Hunks(oldText, newText) {
			fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.BaseFrom+1, len(h.BaseLines), h.BaseFrom+delta+1, len(h.Lines))
			for _, line := range h.BaseLines {
				writePatchLine(&b, "-", line)
			}
			for _, line := range h.Lines {
				writePatchLine(&b, "+", line)
			}
			delta += len(h.Lines) - len(h.BaseLines)
		}
	}
	return b.String(), nil
}

func writePatchLine(b *strings.Builder, prefix, line string) {
	b.WriteString(prefix)
	b.WriteString(line)
	if !strings.HasSuffix(line, "\n") {
		b.WriteString("\n")
	}
}
