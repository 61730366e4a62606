package merge

import (
	"strings"
	"testing"
)

func TestMergeLinesDisjointEdits(t *testing.T) {
	base := "alpha\nbeta\ngamma\ndelta\nepsilon\n"
	ours := "ALPHA\nbeta\ngamma\ndelta\nepsilon\n"
	theirs := "alpha\nbeta\ngamma\ndelta\nEPSILON\n"

	merged, clean := mergeLines([]byte(base), []byte(ours), []byte(theirs), testLabels)
	if !clean {
		t.Fatalf("disjoint edits must merge clean, got:\n%s", merged)
	}
	want := "ALPHA\nbeta\ngamma\ndelta\nEPSILON\n"
	if string(merged) != want {
		t.Errorf("merged = %q, want %q", merged, want)
	}
}

func TestMergeLinesOneSideOnly(t *testing.T) {
	base := "one\ntwo\nthree\n"
	ours := "one\ntwo\nthree\nfour\n"

	merged, clean := mergeLines([]byte(base), []byte(ours), []byte(base), testLabels)
	if !clean {
		t.Fatalf("one-sided edit must merge clean, got:\n%s", merged)
	}
	if string(merged) != ours {
		t.Errorf("merged = %q, want %q", merged, ours)
	}
}

func TestMergeLinesIdenticalEdits(t *testing.T) {
	base := "one\ntwo\nthree\n"
	both := "one\nTWO\nthree\n"

	merged, clean := mergeLines([]byte(base), []byte(both), []byte(both), testLabels)
	if !clean {
		t.Fatalf("identical edits must merge clean, got:\n%s", merged)
	}
	if string(merged) != both {
		t.Errorf("merged = %q, want %q", merged, both)
	}
}

func TestMergeLinesConflictMarkers(t *testing.T) {
	base := "header\nmiddle\nfooter\n"
	ours := "header\nours wins\nfooter\n"
	theirs := "header\ntheirs wins\nfooter\n"

	merged, clean := mergeLines([]byte(base), []byte(ours), []byte(theirs), testLabels)
	if clean {
		t.Fatalf("competing edits must conflict, got:\n%s", merged)
	}
	want := "header\n" +
		"<<<<<<< Updated upstream\n" +
		"ours wins\n" +
		"||||||| Version stash was based on\n" +
		"middle\n" +
		"=======\n" +
		"theirs wins\n" +
		">>>>>>> Stashed changes\n" +
		"footer\n"
	if string(merged) != want {
		t.Errorf("merged =\n%s\nwant\n%s", merged, want)
	}
}

func TestMergeLinesConflictKeepsSurroundingEdits(t *testing.T) {
	base := "a\nb\nc\nd\ne\nf\ng\n"
	ours := "a\nb\nOURS\nd\ne\nf\nG\n"
	theirs := "a\nb\nTHEIRS\nd\ne\nf\ng\n"

	merged, clean := mergeLines([]byte(base), []byte(ours), []byte(theirs), testLabels)
	if clean {
		t.Fatal("expected a conflict on line c")
	}
	text := string(merged)
	if !strings.Contains(text, "OURS\n") || !strings.Contains(text, "THEIRS\n") {
		t.Errorf("conflict block missing side content:\n%s", text)
	}
	if !strings.HasSuffix(text, "G\n") {
		t.Errorf("clean edit outside the conflict was lost:\n%s", text)
	}
}

func TestMergeLinesMissingFinalNewline(t *testing.T) {
	base := "x\n"
	ours := "ours"
	theirs := "theirs"

	merged, clean := mergeLines([]byte(base), []byte(ours), []byte(theirs), testLabels)
	if clean {
		t.Fatal("expected a conflict")
	}
	text := string(merged)
	if strings.Contains(text, "ours=======") || strings.Contains(text, "theirs>>>>>>>") {
		t.Errorf("markers must start on their own line:\n%s", text)
	}
	if !strings.HasSuffix(text, ">>>>>>> Stashed changes\n") {
		t.Errorf("merged content must end with the closing marker:\n%s", text)
	}
}

func TestMergeLinesEmptyBase(t *testing.T) {
	merged, clean := mergeLines(nil, []byte("added\n"), nil, testLabels)
	if !clean {
		t.Fatalf("one-sided addition over empty base must merge clean, got:\n%s", merged)
	}
	if string(merged) != "added\n" {
		t.Errorf("merged = %q, want %q", merged, "added\n")
	}
}
