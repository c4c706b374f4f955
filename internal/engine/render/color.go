package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// TransparentHex is the "no color" value understood by raster output.
	TransparentHex = "#00000000"
	// TransparentKeyword is the "no color" value understood by vector output.
	TransparentKeyword = "transparent"
)

var ErrInvalidColor = errors.New("invalid color")

// ParseColor parses #rgb, #rgba, #rrggbb and #rrggbbaa (the leading # is
// optional) and the transparent keyword.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, TransparentKeyword) {
		return color.NRGBA{}, nil
	}

	hex := strings.TrimPrefix(s, "#")
	switch len(hex) {
	case 3, 4:
		var b strings.Builder
		for _, r := range hex {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		hex = b.String()
	case 6, 8:
	default:
		return color.NRGBA{}, errors.Wrapf(ErrInvalidColor, "%q", s)
	}
	if len(hex) == 6 {
		hex += "ff"
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, errors.Wrapf(ErrInvalidColor, "%q", s)
	}
	return color.NRGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}

// IsTransparentKeyword reports whether s is the vector "no color" sentinel.
func IsTransparentKeyword(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), TransparentKeyword)
}

// HexRGB formats c as #rrggbb, dropping alpha.
func HexRGB(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
