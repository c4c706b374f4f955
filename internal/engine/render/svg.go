package render

import (
	"fmt"
	"image/color"
	"io"
	"strings"

	svg "github.com/ajstarks/svgo"
	"github.com/pkg/errors"

	"prettyqr/internal/engine/qr"
)

// WriteSVG writes sym as SVG markup. The viewBox is in module units, so the
// output stays crisp at any size. A light color given as the transparent
// keyword produces no light fill at all.
func WriteSVG(w io.Writer, sym *qr.Symbol, opts Options) error {
	if opts.Width <= 0 {
		return errors.Errorf("invalid width %d", opts.Width)
	}
	dark, err := ParseColor(opts.Dark)
	if err != nil {
		return errors.Wrap(err, "dark color")
	}
	noLight := IsTransparentKeyword(opts.Light)
	var light color.NRGBA
	if !noLight {
		if light, err = ParseColor(opts.Light); err != nil {
			return errors.Wrap(err, "light color")
		}
	}

	margin := opts.Margin
	if margin < 0 {
		margin = 0
	}
	n := sym.Size + 2*margin

	canvas := svg.New(w)
	canvas.Start(opts.Width, opts.Width,
		fmt.Sprintf(`viewBox="0 0 %d %d"`, n, n),
		`shape-rendering="crispEdges"`)
	if !noLight {
		canvas.Rect(0, 0, n, n, fillAttrs(light)...)
	}
	canvas.Path(darkPath(sym, margin), fillAttrs(dark)...)
	canvas.End()
	return nil
}

func fillAttrs(c color.NRGBA) []string {
	attrs := []string{fmt.Sprintf(`fill="%s"`, HexRGB(c))}
	if c.A < 0xff {
		attrs = append(attrs, fmt.Sprintf(`fill-opacity="%.2f"`, float64(c.A)/255))
	}
	return attrs
}

// darkPath merges horizontal runs of dark modules into one path.
func darkPath(sym *qr.Symbol, margin int) string {
	var sb strings.Builder
	for y := 0; y < sym.Size; y++ {
		for x := 0; x < sym.Size; {
			if !sym.Dark(x, y) {
				x++
				continue
			}
			start := x
			for x < sym.Size && sym.Dark(x, y) {
				x++
			}
			fmt.Fprintf(&sb, "M%d %dh%dv1h-%dz", start+margin, y+margin, x-start, x-start)
		}
	}
	return sb.String()
}
