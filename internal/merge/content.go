package merge

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// span is one edited region of the base: base lines [from, to) are replaced
// by lines. An insertion has from == to.
type span struct {
	from, to int
	lines    []string
}

// mergeLines performs a line-level three-way merge. Regions edited on one
// side only are taken from that side; regions both sides edited identically
// are taken once; regions edited differently become a conflict block with
// markers. Returns the merged content and whether it is conflict free.
func mergeLines(base, ours, theirs []byte, labels Labels) ([]byte, bool) {
	dmp := diffmatchpatch.New()
	baseLines := splitLines(string(base))
	oursSpans := editSpans(dmp, string(base), string(ours))
	theirsSpans := editSpans(dmp, string(base), string(theirs))

	var out []string
	clean := true
	pos := 0
	oi, ti := 0, 0

	for oi < len(oursSpans) || ti < len(theirsSpans) {
		start := len(baseLines)
		if oi < len(oursSpans) && oursSpans[oi].from < start {
			start = oursSpans[oi].from
		}
		if ti < len(theirsSpans) && theirsSpans[ti].from < start {
			start = theirsSpans[ti].from
		}
		out = append(out, baseLines[pos:start]...)

		// Grow the region until it absorbs every overlapping edit from
		// either side. Taking in a span can extend the region and pull
		// in further spans, so loop to a fixed point.
		end := start
		var os, ts []span
		for {
			grew := false
			for oi < len(oursSpans) && joins(oursSpans[oi], start, end) {
				if oursSpans[oi].to > end {
					end = oursSpans[oi].to
				}
				os = append(os, oursSpans[oi])
				oi++
				grew = true
			}
			for ti < len(theirsSpans) && joins(theirsSpans[ti], start, end) {
				if theirsSpans[ti].to > end {
					end = theirsSpans[ti].to
				}
				ts = append(ts, theirsSpans[ti])
				ti++
				grew = true
			}
			if !grew {
				break
			}
		}

		oursRepl := applySpans(baseLines, start, end, os)
		theirsRepl := applySpans(baseLines, start, end, ts)
		switch {
		case len(os) == 0:
			out = append(out, theirsRepl...)
		case len(ts) == 0:
			out = append(out, oursRepl...)
		case linesEqual(oursRepl, theirsRepl):
			out = append(out, oursRepl...)
		default:
			clean = false
			out = append(out, conflictBlock(oursRepl, baseLines[start:end], theirsRepl, labels)...)
		}
		pos = end
	}
	out = append(out, baseLines[pos:]...)

	return []byte(strings.Join(out, "")), clean
}

// joins reports whether s belongs to the region [start, end). Replacements
// join on strict overlap so that edits on adjacent lines merge cleanly;
// insertions also join when they touch the region boundary, since their
// placement relative to the region is ambiguous.
func joins(s span, start, end int) bool {
	if s.from < end {
		return true
	}
	if s.from > end {
		return false
	}
	return s.from == s.to || start == end
}

// applySpans renders one side's version of base lines [start, end).
func applySpans(baseLines []string, start, end int, spans []span) []string {
	var out []string
	pos := start
	for _, s := range spans {
		out = append(out, baseLines[pos:s.from]...)
		out = append(out, s.lines...)
		pos = s.to
	}
	return append(out, baseLines[pos:end]...)
}

func conflictBlock(ours, ancestor, theirs []string, labels Labels) []string {
	var out []string
	out = append(out, fmt.Sprintf("<<<<<<< %s\n", labels.Current))
	out = append(out, terminated(ours)...)
	out = append(out, fmt.Sprintf("||||||| %s\n", labels.Ancestor))
	out = append(out, terminated(ancestor)...)
	out = append(out, "=======\n")
	out = append(out, terminated(theirs)...)
	out = append(out, fmt.Sprintf(">>>>>>> %s\n", labels.Incoming))
	return out
}

// terminated ensures the final line of a conflict section carries a newline
// so the following marker starts on its own line.
func terminated(lines []string) []string {
	if n := len(lines); n > 0 && !strings.HasSuffix(lines[n-1], "\n") {
		out := make([]string, n)
		copy(out, lines)
		out[n-1] += "\n"
		return out
	}
	return lines
}

// editSpans computes the edits turning base into side, as base-anchored
// spans. Diffing runs in line mode so spans land on line boundaries.
func editSpans(dmp *diffmatchpatch.DiffMatchPatch, base, side string) []span {
	src, dst, lineArr := dmp.DiffLinesToChars(base, side)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(src, dst, false), lineArr)

	var spans []span
	pos := 0
	for _, d := range diffs {
		n := len(splitLines(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += n
		case diffmatchpatch.DiffDelete:
			spans = appendSpan(spans, span{from: pos, to: pos + n})
			pos += n
		case diffmatchpatch.DiffInsert:
			spans = appendSpan(spans, span{from: pos, to: pos, lines: splitLines(d.Text)})
		}
	}
	return spans
}

// appendSpan coalesces a delete/insert pair at the same base position into a
// single replacement span.
func appendSpan(spans []span, s span) []span {
	if n := len(spans) - 1; n >= 0 && spans[n].to == s.from {
		spans[n].to = s.to
		spans[n].lines = append(spans[n].lines, s.lines...)
		return spans
	}
	return append(spans, s)
}

// splitLines splits text into lines that keep their trailing newline. The
// final line may lack one.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
