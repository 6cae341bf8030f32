package ogimage

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

// stubMeasurer returns a single line whose height is decided per size.
type stubMeasurer struct {
	height func(size int) int
	calls  []int
}

func (m *stubMeasurer) WrapLines(text string, size, maxWidth int) ([]Line, error) {
	m.calls = append(m.calls, size)
	if text == "" {
		return nil, nil
	}
	return []Line{{Text: text, Width: maxWidth, Height: m.height(size)}}, nil
}

func TestFontSizesLadder(t *testing.T) {
	sizes := FontSizes()
	if len(sizes) != 19 {
		t.Fatalf("len(FontSizes()) = %d, want 19", len(sizes))
	}
	if sizes[0] != 96 || sizes[len(sizes)-1] != 24 {
		t.Fatalf("ladder = %v, want 96..24", sizes)
	}
	for i := 1; i < len(sizes); i++ {
		if sizes[i-1]-sizes[i] != 4 {
			t.Fatalf("ladder step at %d = %d, want 4", i, sizes[i-1]-sizes[i])
		}
	}
}

func TestFitEmptyTitleUsesLargestSize(t *testing.T) {
	m := &stubMeasurer{height: func(int) int { return 1 << 20 }}
	layout, err := Fit(m, "", DefaultRegion())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if layout.FontSize != MaxFontSize {
		t.Errorf("FontSize = %d, want %d", layout.FontSize, MaxFontSize)
	}
	if len(layout.Lines) != 0 {
		t.Errorf("Lines = %v, want none", layout.Lines)
	}
	if !reflect.DeepEqual(m.calls, []int{96}) {
		t.Errorf("calls = %v, want [96]", m.calls)
	}
}

func TestFitReturnsLargestFittingSize(t *testing.T) {
	region := DefaultRegion() // 550 units available
	m := &stubMeasurer{height: func(size int) int { return size * 6 }}

	layout, err := Fit(m, "a title", region)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if layout.FontSize != 88 {
		t.Errorf("FontSize = %d, want 88", layout.FontSize)
	}
	if layout.TotalHeight() > region.Available() {
		t.Errorf("TotalHeight = %d exceeds %d", layout.TotalHeight(), region.Available())
	}
	if !reflect.DeepEqual(m.calls, []int{96, 92, 88}) {
		t.Errorf("calls = %v, want [96 92 88]", m.calls)
	}
}

func TestFitStopsAtFirstFitEvenIfSmallerAlsoFits(t *testing.T) {
	m := &stubMeasurer{height: func(size int) int {
		if size == 92 || size <= 60 {
			return 10
		}
		return 10000
	}}
	layout, err := Fit(m, "title", DefaultRegion())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if layout.FontSize != 92 {
		t.Errorf("FontSize = %d, want 92", layout.FontSize)
	}
}

func TestFitMinimumSizeIsInclusive(t *testing.T) {
	region := DefaultRegion()
	m := &stubMeasurer{height: func(size int) int {
		if size == MinFontSize {
			return region.Available()
		}
		return region.Available() + 1
	}}
	layout, err := Fit(m, "boundary", region)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if layout.FontSize != MinFontSize {
		t.Errorf("FontSize = %d, want %d", layout.FontSize, MinFontSize)
	}
	if len(m.calls) != len(FontSizes()) {
		t.Errorf("tried %d sizes, want %d", len(m.calls), len(FontSizes()))
	}
}

func TestFitOverflowJustPastMinimum(t *testing.T) {
	region := DefaultRegion()
	m := &stubMeasurer{height: func(int) int { return region.Available() + 1 }}

	layout, err := Fit(m, "never fits", region)
	if !errors.Is(err, ErrTextOverflow) {
		t.Fatalf("err = %v, want ErrTextOverflow", err)
	}
	if layout.FontSize != 0 || layout.Lines != nil {
		t.Errorf("layout = %+v, want zero value", layout)
	}
	if !reflect.DeepEqual(m.calls, FontSizes()) {
		t.Errorf("calls = %v, want full ladder", m.calls)
	}
}

func TestFitRejectsInvalidRegion(t *testing.T) {
	m := &stubMeasurer{height: func(int) int { return 1 }}
	_, err := Fit(m, "x", Region{Width: 100, Height: 100, X0: 50, Y0: 10})
	if !errors.Is(err, ErrInvalidRegion) {
		t.Fatalf("err = %v, want ErrInvalidRegion", err)
	}
	if len(m.calls) != 0 {
		t.Errorf("measurer called %d times for invalid region", len(m.calls))
	}
}

func TestRegionValidate(t *testing.T) {
	tests := []struct {
		name   string
		region Region
		ok     bool
	}{
		{"default", DefaultRegion(), true},
		{"zero width", Region{Width: 0, Height: 630}, false},
		{"negative height", Region{Width: 1200, Height: -1}, false},
		{"inset eats width", Region{Width: 1200, Height: 630, X0: 600}, false},
		{"origin at bottom", Region{Width: 1200, Height: 630, Y0: 630}, false},
		{"negative origin", Region{Width: 1200, Height: 630, X0: -1}, false},
		{"no inset", Region{Width: 1200, Height: 630}, true},
	}
	for _, tt := range tests {
		err := tt.region.Validate()
		if (err == nil) != tt.ok {
			t.Errorf("%s: Validate() = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}

func TestFitWithTypesetterNeverExceedsAvailable(t *testing.T) {
	ts, err := NewTypesetter(nil)
	if err != nil {
		t.Fatalf("NewTypesetter: %v", err)
	}
	region := DefaultRegion()
	titles := []string{
		"Go",
		"Building a Blog Engine with Echo and templ",
		strings.Repeat("content addressed publishing ", 12),
		strings.Repeat("supercalifragilistic", 8),
	}
	for _, title := range titles {
		layout, err := Fit(ts, title, region)
		if err != nil {
			t.Fatalf("Fit(%q): %v", title, err)
		}
		if layout.TotalHeight() > region.Available() {
			t.Errorf("Fit(%q) total %d > available %d", title, layout.TotalHeight(), region.Available())
		}
		if layout.FontSize < MinFontSize || layout.FontSize > MaxFontSize || (MaxFontSize-layout.FontSize)%FontSizeStep != 0 {
			t.Errorf("Fit(%q) size %d not on ladder", title, layout.FontSize)
		}
		// The next larger size must not have fit.
		if layout.FontSize < MaxFontSize {
			lines, err := ts.WrapLines(title, layout.FontSize+FontSizeStep, region.MaxWidth())
			if err != nil {
				t.Fatalf("WrapLines: %v", err)
			}
			if (Layout{Lines: lines}).TotalHeight() <= region.Available() {
				t.Errorf("Fit(%q) = %d but %d also fits", title, layout.FontSize, layout.FontSize+FontSizeStep)
			}
		}
	}
}

func TestFitOverflowWithUnbreakableTitle(t *testing.T) {
	ts, err := NewTypesetter(nil)
	if err != nil {
		t.Fatalf("NewTypesetter: %v", err)
	}
	_, err = Fit(ts, strings.Repeat("W", 5000), DefaultRegion())
	if !errors.Is(err, ErrTextOverflow) {
		t.Fatalf("err = %v, want ErrTextOverflow", err)
	}
}
