package ogimage

import (
	"strings"
	"testing"
)

func newTestTypesetter(t *testing.T) *Typesetter {
	t.Helper()
	ts, err := NewTypesetter(nil)
	if err != nil {
		t.Fatalf("NewTypesetter: %v", err)
	}
	return ts
}

func TestWrapLinesEmpty(t *testing.T) {
	ts := newTestTypesetter(t)
	for _, text := range []string{"", "   ", "\n\t"} {
		lines, err := ts.WrapLines(text, 48, 1040)
		if err != nil {
			t.Fatalf("WrapLines(%q): %v", text, err)
		}
		if len(lines) != 0 {
			t.Errorf("WrapLines(%q) = %v, want no lines", text, lines)
		}
	}
}

func TestWrapLinesKeepsWordsAndWidth(t *testing.T) {
	ts := newTestTypesetter(t)
	text := "Shipping Open Graph covers from a tiny Go service without a headless browser"
	const maxWidth = 600

	lines, err := ts.WrapLines(text, 48, maxWidth)
	if err != nil {
		t.Fatalf("WrapLines: %v", err)
	}
	if len(lines) < 2 {
		t.Fatalf("expected text to wrap, got %d line(s)", len(lines))
	}
	var words []string
	for _, line := range lines {
		if line.Width > maxWidth {
			t.Errorf("line %q width %d > %d", line.Text, line.Width, maxWidth)
		}
		if line.Height <= 0 {
			t.Errorf("line %q height %d", line.Text, line.Height)
		}
		words = append(words, strings.Fields(line.Text)...)
	}
	if got, want := strings.Join(words, " "), strings.Join(strings.Fields(text), " "); got != want {
		t.Errorf("rejoined = %q, want %q", got, want)
	}
}

func TestWrapLinesBreaksLongWord(t *testing.T) {
	ts := newTestTypesetter(t)
	word := strings.Repeat("W", 200)
	const maxWidth = 500

	lines, err := ts.WrapLines(word, 40, maxWidth)
	if err != nil {
		t.Fatalf("WrapLines: %v", err)
	}
	if len(lines) < 2 {
		t.Fatalf("expected forced break, got %d line(s)", len(lines))
	}
	var joined strings.Builder
	for _, line := range lines {
		if line.Width > maxWidth {
			t.Errorf("chunk width %d > %d", line.Width, maxWidth)
		}
		joined.WriteString(line.Text)
	}
	if joined.String() != word {
		t.Errorf("chunks do not reassemble the word")
	}
}

func TestWrapLinesNarrowerThanOneGlyphTerminates(t *testing.T) {
	ts := newTestTypesetter(t)
	lines, err := ts.WrapLines("abc", 96, 1)
	if err != nil {
		t.Fatalf("WrapLines: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want one per rune", len(lines))
	}
}

func TestWrapLinesSmallerSizeUsesFewerLines(t *testing.T) {
	ts := newTestTypesetter(t)
	text := strings.Repeat("measure twice cut once ", 6)
	big, err := ts.WrapLines(text, 96, 1040)
	if err != nil {
		t.Fatal(err)
	}
	small, err := ts.WrapLines(text, 24, 1040)
	if err != nil {
		t.Fatal(err)
	}
	if len(small) >= len(big) {
		t.Errorf("24px lines = %d, 96px lines = %d; want fewer at smaller size", len(small), len(big))
	}
}

func TestWrapLinesCachedAdvanceIsStable(t *testing.T) {
	ts := newTestTypesetter(t)
	first, err := ts.WrapLines("repeatable layout", 64, 1040)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ts.WrapLines("repeatable layout", 64, 1040)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
		t.Errorf("layouts differ: %v vs %v", first, second)
	}
}
