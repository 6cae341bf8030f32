// Package ogimage renders fixed-size Open Graph cover images for post titles.
//
// The font size is chosen by walking a fixed ladder of candidate sizes from
// the largest down and accepting the first size at which the wrapped title
// fits the text box. The walk is linear so the same title always lands on the
// same size.
package ogimage

import (
	"errors"
	"fmt"
)

const (
	CanvasWidth  = 1200
	CanvasHeight = 630

	MaxFontSize  = 96
	MinFontSize  = 24
	FontSizeStep = 4
)

var (
	// ErrTextOverflow is returned when a title does not fit the text box at
	// any size on the ladder.
	ErrTextOverflow = errors.New("text overflow")
	// ErrInvalidRegion is returned for regions with no drawable text box.
	ErrInvalidRegion = errors.New("invalid region")
)

// Region is the canvas frame plus the origin of the text box inside it.
// The text box spans the canvas width minus X0 on each side and runs from
// Y0 to the bottom edge.
type Region struct {
	Width  int
	Height int
	X0     int
	Y0     int
}

// DefaultRegion returns the 1200x630 Open Graph frame with an 80 unit inset.
func DefaultRegion() Region {
	return Region{Width: CanvasWidth, Height: CanvasHeight, X0: 80, Y0: 80}
}

// MaxWidth is the widest a wrapped line may be.
func (r Region) MaxWidth() int {
	return r.Width - 2*r.X0
}

// Available is the vertical space below the text box origin.
func (r Region) Available() int {
	return r.Height - r.Y0
}

// Validate reports whether the region can hold any text at all.
func (r Region) Validate() error {
	switch {
	case r.Width <= 0 || r.Height <= 0:
		return fmt.Errorf("%w: canvas %dx%d", ErrInvalidRegion, r.Width, r.Height)
	case r.X0 < 0 || r.Y0 < 0:
		return fmt.Errorf("%w: negative origin (%d,%d)", ErrInvalidRegion, r.X0, r.Y0)
	case r.MaxWidth() <= 0:
		return fmt.Errorf("%w: text box width %d", ErrInvalidRegion, r.MaxWidth())
	case r.Available() <= 0:
		return fmt.Errorf("%w: text box height %d", ErrInvalidRegion, r.Available())
	}
	return nil
}

// Line is one wrapped line of a title.
type Line struct {
	Text   string
	Width  int
	Height int
}

// Layout is the accepted font size together with the lines wrapped at it.
type Layout struct {
	FontSize int
	Lines    []Line
}

// TotalHeight sums the heights of all lines.
func (l Layout) TotalHeight() int {
	total := 0
	for _, line := range l.Lines {
		total += line.Height
	}
	return total
}

// Measurer wraps text into lines no wider than maxWidth at the given font
// size. Words wider than maxWidth must be broken so that a finite input
// always yields a finite number of lines.
type Measurer interface {
	WrapLines(text string, size, maxWidth int) ([]Line, error)
}

// FontSizes returns the candidate sizes in the order Fit tries them.
func FontSizes() []int {
	sizes := make([]int, 0, (MaxFontSize-MinFontSize)/FontSizeStep+1)
	for size := MaxFontSize; size >= MinFontSize; size -= FontSizeStep {
		sizes = append(sizes, size)
	}
	return sizes
}

// Fit returns the largest ladder size at which title fits region. An empty
// title has no lines and fits at MaxFontSize.
func Fit(m Measurer, title string, region Region) (Layout, error) {
	if err := region.Validate(); err != nil {
		return Layout{}, err
	}
	maxWidth := region.MaxWidth()
	available := region.Available()

	for size := MaxFontSize; size >= MinFontSize; size -= FontSizeStep {
		lines, err := m.WrapLines(title, size, maxWidth)
		if err != nil {
			return Layout{}, fmt.Errorf("wrap at %dpx: %w", size, err)
		}
		layout := Layout{FontSize: size, Lines: lines}
		if layout.TotalHeight() <= available {
			return layout, nil
		}
	}
	return Layout{}, fmt.Errorf("%w: %q needs more than %d units at %dpx", ErrTextOverflow, abbreviate(title, 40), available, MinFontSize)
}

func abbreviate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
