package studio

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type Format string

const (
	FormatRaster Format = "raster"
	FormatVector Format = "vector"
)

var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts raster/png and vector/svg.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "raster", "png":
		return FormatRaster, nil
	case "vector", "svg":
		return FormatVector, nil
	}
	return "", errors.Wrapf(ErrUnknownFormat, "%q", s)
}

func (f Format) FileName() string {
	if f == FormatVector {
		return "qr-code.svg"
	}
	return "qr-code.png"
}

func (f Format) ContentType() string {
	if f == FormatVector {
		return "image/svg+xml"
	}
	return "image/png"
}

// Artifact is the latest raster preview of a request.
type Artifact struct {
	PNG         []byte
	DataURI     string
	Fingerprint string
	Generation  uint64
	Request     Request
}

// Download is an exported file.
type Download struct {
	Format      Format
	FileName    string
	ContentType string
	Data        []byte
	Fingerprint string
}

func (d *Download) ContentDisposition() string {
	return fmt.Sprintf("attachment; filename=%q", d.FileName)
}

type EventKind string

const (
	EventRendered EventKind = "rendered"
	EventCleared  EventKind = "cleared"
	EventFailed   EventKind = "failed"
)

// Event reports the outcome of a regeneration.
type Event struct {
	Kind     EventKind
	Artifact *Artifact
	Err      error
}
