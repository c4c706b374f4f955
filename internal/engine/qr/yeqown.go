package qr

import (
	"github.com/pkg/errors"
	"github.com/yeqown/go-qrcode/v2"
)

type yeqownBackend struct{}

func (yeqownBackend) Name() string { return "yeqown" }

func (yeqownBackend) Encode(payload string, level Level) (*Symbol, error) {
	qrc, err := qrcode.NewWith(payload, yeqownLevel(level))
	if err != nil {
		return nil, errors.Wrap(err, "yeqown encode")
	}

	w := &matrixWriter{}
	if err := qrc.Save(w); err != nil {
		return nil, errors.Wrap(err, "yeqown matrix")
	}
	if w.sym == nil {
		return nil, errors.New("yeqown encode: no matrix written")
	}
	return w.sym, nil
}

// matrixWriter implements qrcode.Writer by copying the matrix into a Symbol.
type matrixWriter struct {
	sym *Symbol
}

func (w *matrixWriter) Write(mat qrcode.Matrix) error {
	if mat.Width() != mat.Height() {
		return errors.Errorf("non-square matrix %dx%d", mat.Width(), mat.Height())
	}

	sym := newSymbol(mat.Width())
	mat.Iterate(qrcode.IterDirection_ROW, func(x, y int, v qrcode.QRValue) {
		sym.set(x, y, v.IsSet())
	})
	w.sym = sym
	return nil
}

func (w *matrixWriter) Close() error { return nil }

func yeqownLevel(l Level) qrcode.EncodeOption {
	switch l {
	case LevelLow:
		return qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionLow)
	case LevelQuartile:
		return qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionQuart)
	case LevelHigh:
		return qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionHighest)
	default:
		return qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionMedium)
	}
}
