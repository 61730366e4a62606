package merge

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Hunk is one contiguous edited region of a file: base lines
// [BaseFrom, BaseTo) are replaced by Lines. An insertion has
// BaseFrom == BaseTo and no BaseLines.
type Hunk struct {
	BaseFrom  int
	BaseTo    int
	BaseLines []string
	Lines     []string
}

// Hunks computes the line-level edits turning base into side, one hunk per
// contiguous edited region, in base order.
func Hunks(base, side []byte) []Hunk {
	dmp := diffmatchpatch.New()
	baseLines := splitLines(string(base))

	var hunks []Hunk
	for _, s := range editSpans(dmp, string(base), string(side)) {
		hunks = append(hunks, Hunk{
			BaseFrom:  s.from,
			BaseTo:    s.to,
			BaseLines: baseLines[s.from:s.to],
			Lines:     s.lines,
		})
	}
	return hunks
}

// ApplyHunks applies a subset of the hunks from Hunks to base. The subset
// must keep base order.
func ApplyHunks(base []byte, hunks []Hunk) []byte {
	baseLines := splitLines(string(base))

	var out []string
	pos := 0
	for _, h := range hunks {
		out = append(out, baseLines[pos:h.BaseFrom]...)
		out = append(out, h.Lines...)
		pos = h.BaseTo
	}
	out = append(out, baseLines[pos:]...)
	return []byte(strings.Join(out, ""))
}
