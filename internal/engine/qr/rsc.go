package qr

import (
	"github.com/pkg/errors"
	rscqr "rsc.io/qr"
)

type rscBackend struct{}

func (rscBackend) Name() string { return "rsc" }

func (rscBackend) Encode(payload string, level Level) (*Symbol, error) {
	code, err := rscqr.Encode(payload, rscLevel(level))
	if err != nil {
		return nil, errors.Wrap(err, "rsc encode")
	}
	if code.Size == 0 {
		return nil, errors.New("rsc encode: empty symbol")
	}

	sym := newSymbol(code.Size)
	for y := 0; y < code.Size; y++ {
		for x := 0; x < code.Size; x++ {
			sym.set(x, y, code.Black(x, y))
		}
	}
	return sym, nil
}

func rscLevel(l Level) rscqr.Level {
	switch l {
	case LevelLow:
		return rscqr.L
	case LevelQuartile:
		return rscqr.Q
	case LevelHigh:
		return rscqr.H
	default:
		return rscqr.M
	}
}
