// Package qr adapts third-party QR encoders to a single module bitmap type.
package qr

import (
	"strings"

	"github.com/pkg/errors"
)

// Level is the error correction level requested from a backend.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelQuartile
	LevelHigh
)

var ErrUnknownBackend = errors.New("unknown qr backend")

// ParseLevel accepts L, M, Q, H (case-insensitive) and the long names.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "low":
		return LevelLow, nil
	case "", "m", "medium":
		return LevelMedium, nil
	case "q", "quartile":
		return LevelQuartile, nil
	case "h", "high":
		return LevelHigh, nil
	}
	return LevelMedium, errors.Errorf("invalid error correction level %q", s)
}

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "L"
	case LevelQuartile:
		return "Q"
	case LevelHigh:
		return "H"
	default:
		return "M"
	}
}

// Symbol is a square module bitmap without quiet zone.
type Symbol struct {
	Size    int
	modules []bool
}

func newSymbol(size int) *Symbol {
	return &Symbol{Size: size, modules: make([]bool, size*size)}
}

func (s *Symbol) set(x, y int, dark bool) {
	s.modules[y*s.Size+x] = dark
}

// Dark reports whether the module at (x, y) is dark. Out of range is light.
func (s *Symbol) Dark(x, y int) bool {
	if x < 0 || y < 0 || x >= s.Size || y >= s.Size {
		return false
	}
	return s.modules[y*s.Size+x]
}

// Equal reports whether both symbols have the same module pattern.
func (s *Symbol) Equal(o *Symbol) bool {
	if s == nil || o == nil || s.Size != o.Size {
		return false
	}
	for i := range s.modules {
		if s.modules[i] != o.modules[i] {
			return false
		}
	}
	return true
}

type Backend interface {
	Name() string
	Encode(payload string, level Level) (*Symbol, error)
}

const DefaultBackend = "skip2"

// New returns the backend registered under name. An empty name selects
// DefaultBackend.
func New(name string) (Backend, error) {
	switch strings.ToLower(name) {
	case "", DefaultBackend:
		return skip2Backend{}, nil
	case "rsc":
		return rscBackend{}, nil
	case "yeqown":
		return yeqownBackend{}, nil
	}
	return nil, errors.Wrapf(ErrUnknownBackend, "backend %q", name)
}

// Backends lists the names accepted by New.
func Backends() []string {
	return []string{DefaultBackend, "rsc", "yeqown"}
}
