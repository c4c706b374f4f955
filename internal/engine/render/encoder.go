// Package render turns QR symbols into raster images, canvases and SVG
// markup using a dark/light color pair.
package render

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"

	"prettyqr/internal/engine/qr"
)

// DefaultMargin is the quiet zone, in modules, drawn around the symbol.
const DefaultMargin = 2

// FallbackScale is the pixels per module used when the requested width
// cannot hold one pixel per module.
const FallbackScale = 4

// ImageWidth returns the width of the image drawn for n modules at the
// requested width. Widths too small for the symbol switch to FallbackScale,
// so the image comes out larger than requested.
func ImageWidth(width, n int) int {
	if width < n {
		return n * FallbackScale
	}
	return width
}

type Options struct {
	Width  int
	Margin int
	Dark   string
	Light  string
	Level  qr.Level
}

// Encoder exposes the three encoding operations on top of a symbol backend.
type Encoder struct {
	backend qr.Backend
}

func NewEncoder(backend qr.Backend) *Encoder {
	return &Encoder{backend: backend}
}

func (e *Encoder) Backend() string {
	return e.backend.Name()
}

// Symbol encodes payload with the configured backend.
func (e *Encoder) Symbol(payload string, level qr.Level) (*qr.Symbol, error) {
	return e.backend.Encode(payload, level)
}

// ToImage renders payload into a Width x Width image.
func (e *Encoder) ToImage(payload string, opts Options) (*image.NRGBA, error) {
	sym, err := e.Symbol(payload, opts.Level)
	if err != nil {
		return nil, err
	}
	return Rasterize(sym, opts)
}

// ToPNG renders payload and encodes the image as PNG.
func (e *Encoder) ToPNG(payload string, opts Options) ([]byte, error) {
	img, err := e.ToImage(payload, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "encode png")
	}
	return buf.Bytes(), nil
}

// ToDataURI renders payload as a data:image/png;base64 URI.
func (e *Encoder) ToDataURI(payload string, opts Options) (string, error) {
	b, err := e.ToPNG(payload, opts)
	if err != nil {
		return "", err
	}
	return DataURI(b), nil
}

// ToCanvas draws payload on a new canvas pre-filled with bg, or left
// transparent when bg is nil. The canvas takes the image's width, which
// exceeds opts.Width when the symbol does not fit.
func (e *Encoder) ToCanvas(payload string, opts Options, bg *color.NRGBA) (*gg.Context, error) {
	img, err := e.ToImage(payload, opts)
	if err != nil {
		return nil, err
	}
	dc := Background(img.Bounds().Dx(), bg)
	dc.DrawImage(img, 0, 0)
	return dc, nil
}

// ToString renders payload as SVG markup.
func (e *Encoder) ToString(payload string, opts Options) (string, error) {
	sym, err := e.Symbol(payload, opts.Level)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := WriteSVG(&sb, sym, opts); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Rasterize draws sym at one pixel per module and scales it to
// ImageWidth(opts.Width, modules) with nearest-neighbour sampling.
func Rasterize(sym *qr.Symbol, opts Options) (*image.NRGBA, error) {
	dark, err := ParseColor(opts.Dark)
	if err != nil {
		return nil, errors.Wrap(err, "dark color")
	}
	light, err := ParseColor(opts.Light)
	if err != nil {
		return nil, errors.Wrap(err, "light color")
	}

	margin := opts.Margin
	if margin < 0 {
		margin = 0
	}
	n := sym.Size + 2*margin
	width := ImageWidth(opts.Width, n)

	src := image.NewNRGBA(image.Rect(0, 0, n, n))
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			c := light
			if sym.Dark(x-margin, y-margin) {
				c = dark
			}
			src.SetNRGBA(x, y, c)
		}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, width))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst, nil
}

// Background returns a canvas of width x width, filled with bg unless bg is
// nil.
func Background(width int, bg *color.NRGBA) *gg.Context {
	dc := gg.NewContext(width, width)
	if bg != nil {
		dc.SetColor(*bg)
		dc.Clear()
	}
	return dc
}

func DataURI(pngBytes []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}
