package ogimage

import (
	"fmt"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// logicalDPI makes one point equal one logical canvas unit.
const logicalDPI = 72

const advanceCacheSize = 4096

type advanceKey struct {
	size int
	word string
}

// Typesetter measures and wraps text with an OpenType font. It is safe for
// concurrent use: faces are created per call and only the advance cache is
// shared.
type Typesetter struct {
	font     *opentype.Font
	advances *lru.Cache[advanceKey, fixed.Int26_6]
}

// DefaultFont returns the bundled Go Bold typeface.
func DefaultFont() (*opentype.Font, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse default font: %w", err)
	}
	return f, nil
}

// LoadFont reads a TTF or OTF file from disk.
func LoadFont(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	return f, nil
}

// NewTypesetter wraps f. A nil font selects DefaultFont.
func NewTypesetter(f *opentype.Font) (*Typesetter, error) {
	if f == nil {
		var err error
		if f, err = DefaultFont(); err != nil {
			return nil, err
		}
	}
	cache, err := lru.New[advanceKey, fixed.Int26_6](advanceCacheSize)
	if err != nil {
		return nil, err
	}
	return &Typesetter{font: f, advances: cache}, nil
}

// Face returns a new face at size points scaled by density. Faces are not
// safe for concurrent use; callers close them when done.
func (t *Typesetter) Face(size, density int) (font.Face, error) {
	return opentype.NewFace(t.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     float64(logicalDPI * density),
		Hinting: font.HintingNone,
	})
}

// WrapLines greedily packs words into lines no wider than maxWidth. Words
// that are wider than maxWidth on their own are broken between runes.
func (t *Typesetter) WrapLines(text string, size, maxWidth int) ([]Line, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}
	face, err := t.Face(size, 1)
	if err != nil {
		return nil, fmt.Errorf("face at %dpx: %w", size, err)
	}
	defer face.Close()

	height := face.Metrics().Height.Ceil()
	limit := fixed.I(maxWidth)
	space := t.advance(face, size, " ")

	var (
		lines []Line
		cur   []string
		curW  fixed.Int26_6
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		lines = append(lines, Line{Text: strings.Join(cur, " "), Width: curW.Ceil(), Height: height})
		cur = cur[:0]
		curW = 0
	}

	for _, word := range words {
		w := t.advance(face, size, word)
		switch {
		case w > limit:
			flush()
			chunks := breakWord(face, word, limit)
			for _, c := range chunks[:len(chunks)-1] {
				lines = append(lines, Line{Text: c.text, Width: c.width.Ceil(), Height: height})
			}
			last := chunks[len(chunks)-1]
			cur = append(cur, last.text)
			curW = last.width
		case len(cur) == 0:
			cur = append(cur, word)
			curW = w
		case curW+space+w <= limit:
			cur = append(cur, word)
			curW += space + w
		default:
			flush()
			cur = append(cur, word)
			curW = w
		}
	}
	flush()
	return lines, nil
}

// advance is the unkerned width of s at size, cached across calls.
func (t *Typesetter) advance(face font.Face, size int, s string) fixed.Int26_6 {
	key := advanceKey{size: size, word: s}
	if w, ok := t.advances.Get(key); ok {
		return w
	}
	var w fixed.Int26_6
	for _, r := range s {
		a, _ := face.GlyphAdvance(r)
		w += a
	}
	t.advances.Add(key, w)
	return w
}

type chunk struct {
	text  string
	width fixed.Int26_6
}

// breakWord splits word into runs no wider than limit. Every run holds at
// least one rune so the split always terminates.
func breakWord(face font.Face, word string, limit fixed.Int26_6) []chunk {
	var (
		chunks []chunk
		start  int
		width  fixed.Int26_6
	)
	for i, r := range word {
		a, _ := face.GlyphAdvance(r)
		if width+a > limit && i > start {
			chunks = append(chunks, chunk{text: word[start:i], width: width})
			start = i
			width = 0
		}
		width += a
	}
	return append(chunks, chunk{text: word[start:], width: width})
}
