package ogimage

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Style holds the colours and stroke used when drawing a cover.
type Style struct {
	Background  color.Color
	Fill        color.Color
	Stroke      color.Color
	StrokeWidth int // logical units, full width of the outline
}

// DefaultStyle is white text with a translucent black outline on slate.
func DefaultStyle() Style {
	return Style{
		Background:  color.NRGBA{R: 0x0f, G: 0x17, B: 0x2a, A: 0xff},
		Fill:        color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		Stroke:      color.NRGBA{R: 0x00, G: 0x00, B: 0x00, A: 0x66},
		StrokeWidth: 12,
	}
}

// ParseHexColor parses #rgb, #rrggbb and #rrggbbaa.
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]}) + "ff"
	case 6:
		hex += "ff"
	case 8:
	default:
		return color.NRGBA{}, fmt.Errorf("parse colour %q: want #rgb, #rrggbb or #rrggbbaa", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("parse colour %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
