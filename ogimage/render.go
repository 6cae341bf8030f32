package ogimage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

const defaultJPEGQuality = 90

// MaxDensity is the largest supported output pixel multiplier.
const MaxDensity = 4

// Format is the encoding used for rendered covers.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// ParseFormat accepts "png", "jpeg" and "jpg". Empty selects PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", s)
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Ext returns the file extension for f, including the dot.
func (f Format) Ext() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return ".png"
}

// Options configures a Renderer. Zero values select the defaults.
type Options struct {
	Region      Region
	Style       Style
	Font        *opentype.Font
	Background  image.Image
	Format      Format
	Density     int
	JPEGQuality int
}

// Renderer fits titles and draws covers. It holds no per-call state and may
// be shared between goroutines.
type Renderer struct {
	region     Region
	style      Style
	typesetter *Typesetter
	background image.Image
	format     Format
	density    int
	quality    int
}

// NewRenderer validates opts and prepares the typesetter.
func NewRenderer(opts Options) (*Renderer, error) {
	if opts.Region == (Region{}) {
		opts.Region = DefaultRegion()
	}
	if err := opts.Region.Validate(); err != nil {
		return nil, err
	}
	if opts.Style == (Style{}) {
		opts.Style = DefaultStyle()
	}
	if opts.Format == "" {
		opts.Format = FormatPNG
	}
	if opts.Density == 0 {
		opts.Density = 1
	}
	if opts.Density < 1 || opts.Density > MaxDensity {
		return nil, fmt.Errorf("density %d out of range 1..%d", opts.Density, MaxDensity)
	}
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = defaultJPEGQuality
	}
	ts, err := NewTypesetter(opts.Font)
	if err != nil {
		return nil, err
	}
	return &Renderer{
		region:     opts.Region,
		style:      opts.Style,
		typesetter: ts,
		background: opts.Background,
		format:     opts.Format,
		density:    opts.Density,
		quality:    opts.JPEGQuality,
	}, nil
}

// Region returns the frame the renderer draws into.
func (r *Renderer) Region() Region { return r.region }

// Format returns the encoding of rendered images.
func (r *Renderer) Format() Format { return r.format }

// Fit chooses the font size for title without drawing anything.
func (r *Renderer) Fit(title string) (Layout, error) {
	return Fit(r.typesetter, title, r.region)
}

// Render fits title and draws the finished cover. No image is returned when
// the title overflows.
func (r *Renderer) Render(title string) (*Image, error) {
	layout, err := r.Fit(title)
	if err != nil {
		return nil, err
	}

	bounds := image.Rect(0, 0, r.region.Width*r.density, r.region.Height*r.density)
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, image.NewUniform(r.style.Background), image.Point{}, draw.Src)
	if r.background != nil {
		src := r.background.Bounds()
		draw.CatmullRom.Scale(canvas, bounds, r.background, coverRect(src, bounds.Dx(), bounds.Dy()), draw.Over, nil)
	}

	if len(layout.Lines) > 0 {
		mask, err := r.textMask(layout, bounds)
		if err != nil {
			return nil, err
		}
		if radius := r.style.StrokeWidth * r.density / 2; radius > 0 && r.style.Stroke != nil {
			outline := dilate(mask, radius)
			draw.DrawMask(canvas, bounds, image.NewUniform(r.style.Stroke), image.Point{}, outline, image.Point{}, draw.Over)
		}
		draw.DrawMask(canvas, bounds, image.NewUniform(r.style.Fill), image.Point{}, mask, image.Point{}, draw.Over)
	}

	return &Image{
		rgba:    canvas,
		layout:  layout,
		format:  r.format,
		density: r.density,
		quality: r.quality,
	}, nil
}

// textMask rasterizes the wrapped lines into a coverage mask at the output
// density.
func (r *Renderer) textMask(layout Layout, bounds image.Rectangle) (*image.Alpha, error) {
	face, err := r.typesetter.Face(layout.FontSize, r.density)
	if err != nil {
		return nil, fmt.Errorf("face at %dpx: %w", layout.FontSize, err)
	}
	defer face.Close()

	mask := image.NewAlpha(bounds)
	d := font.Drawer{Dst: mask, Src: image.Opaque, Face: face}
	ascent := face.Metrics().Ascent
	top := fixed.I(r.region.Y0 * r.density)
	left := fixed.I(r.region.X0 * r.density)
	for _, line := range layout.Lines {
		d.Dot = fixed.Point26_6{X: left, Y: top + ascent}
		d.DrawString(line.Text)
		top += fixed.I(line.Height * r.density)
	}
	return mask, nil
}

// coverRect crops src to the w:h aspect ratio around its centre.
func coverRect(src image.Rectangle, w, h int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw*h > sh*w {
		cw := sh * w / h
		x := src.Min.X + (sw-cw)/2
		return image.Rect(x, src.Min.Y, x+cw, src.Max.Y)
	}
	ch := sw * h / w
	y := src.Min.Y + (sh-ch)/2
	return image.Rect(src.Min.X, y, src.Max.X, y+ch)
}

// dilate grows the coverage of src by radius pixels in every direction with
// a separable max filter.
func dilate(src *image.Alpha, radius int) *image.Alpha {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	tmp := image.NewAlpha(b)
	out := image.NewAlpha(b)

	for y := 0; y < h; y++ {
		in := src.Pix[y*src.Stride : y*src.Stride+w]
		row := tmp.Pix[y*tmp.Stride : y*tmp.Stride+w]
		for x := 0; x < w; x++ {
			row[x] = maxRun(in, x-radius, x+radius)
		}
	}
	for x := 0; x < w; x++ {
		col := tmp.Pix[x:]
		for y := 0; y < h; y++ {
			lo, hi := max(0, y-radius), min(h-1, y+radius)
			var m uint8
			for i := lo; i <= hi && m < 0xff; i++ {
				if v := col[i*tmp.Stride]; v > m {
					m = v
				}
			}
			out.Pix[y*out.Stride+x] = m
		}
	}
	return out
}

func maxRun(pix []uint8, lo, hi int) uint8 {
	lo, hi = max(0, lo), min(len(pix)-1, hi)
	var m uint8
	for i := lo; i <= hi && m < 0xff; i++ {
		if pix[i] > m {
			m = pix[i]
		}
	}
	return m
}

// Image is a finished cover. It is never modified after Render returns.
type Image struct {
	rgba    *image.RGBA
	layout  Layout
	format  Format
	density int
	quality int
}

func (img *Image) ColorModel() color.Model { return img.rgba.ColorModel() }
func (img *Image) Bounds() image.Rectangle { return img.rgba.Bounds() }
func (img *Image) At(x, y int) color.Color { return img.rgba.At(x, y) }

// Layout returns the accepted font size and wrapped lines.
func (img *Image) Layout() Layout { return img.layout }

// FontSize is shorthand for Layout().FontSize.
func (img *Image) FontSize() int { return img.layout.FontSize }

// Density is the output pixel multiplier over logical units.
func (img *Image) Density() int { return img.density }

// Format returns the encoding Encode produces.
func (img *Image) Format() Format { return img.format }

// ContentType returns the MIME type of the encoded image.
func (img *Image) ContentType() string { return img.format.ContentType() }

// Encode writes the canonical encoding of the image. The output depends only
// on the pixels and the encoder settings.
func (img *Image) Encode(w io.Writer) error {
	switch img.format {
	case FormatJPEG:
		if err := jpeg.Encode(w, img.rgba, &jpeg.Options{Quality: img.quality}); err != nil {
			return fmt.Errorf("encode jpeg: %w", err)
		}
	default:
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := enc.Encode(w, img.rgba); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
	}
	return nil
}

// Bytes returns the encoded image.
func (img *Image) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := img.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadBackground decodes a PNG, JPEG, GIF or WebP file for use as
// Options.Background.
func LoadBackground(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open background: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode background %s: %w", path, err)
	}
	return img, nil
}
