// Package xzf adapts github.com/ulikunitz/xz, the only xz decoder in the
// retrieval pack (the standard library has none).
package xzf

import (
	"io"

	"github.com/ulikunitz/xz"

	"github/sabouaram/ci-unpack/internal/errclass"
)

// Open decodes an xz stream from r.
func Open(r io.Reader) (io.Reader, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, errclass.FormatError("xz: invalid header", err)
	}
	return &wrappedReader{xr: xr}, nil
}

type wrappedReader struct {
	xr io.Reader
}

func (w *wrappedReader) Read(p []byte) (int, error) {
	n, err := w.xr.Read(p)
	if err != nil && err != io.EOF {
		return n, errclass.FormatError("xz: decode failed", err)
	}
	return n, err
}
