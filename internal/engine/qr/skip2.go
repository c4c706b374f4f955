package qr

import (
	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"
)

type skip2Backend struct{}

func (skip2Backend) Name() string { return "skip2" }

func (skip2Backend) Encode(payload string, level Level) (*Symbol, error) {
	q, err := qrcode.New(payload, skip2Level(level))
	if err != nil {
		return nil, errors.Wrap(err, "skip2 encode")
	}

	// Quiet zone is added by the renderer with its own margin.
	q.DisableBorder = true

	bitmap := q.Bitmap()
	sym := newSymbol(len(bitmap))
	for y, row := range bitmap {
		for x, dark := range row {
			sym.set(x, y, dark)
		}
	}
	return sym, nil
}

func skip2Level(l Level) qrcode.RecoveryLevel {
	switch l {
	case LevelLow:
		return qrcode.Low
	case LevelQuartile:
		return qrcode.High
	case LevelHigh:
		return qrcode.Highest
	default:
		return qrcode.Medium
	}
}
