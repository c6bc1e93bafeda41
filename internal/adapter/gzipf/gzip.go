// Package gzipf adapts compress/gzip to the single-stream decode contract
// used by compression-format dispatch in the recursion controller.
package gzipf

import (
	"compress/gzip"
	"io"
	"unicode/utf8"

	"github/sabouaram/ci-unpack/internal/errclass"
	"github/sabouaram/ci-unpack/internal/meta"
)

// Open decodes a gzip stream from r. The returned name is the original
// filename from the gzip header when present and valid UTF-8, empty
// otherwise (the controller falls back to suffix-stripping the outer
// name). mtimeNS is the header's modification time, normalized to
// nanoseconds, or 0 if the header carries none.
func Open(r io.Reader) (name string, mtimeNS uint64, body io.Reader, err error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return "", 0, nil, errclass.FormatError("gzip: invalid header", err)
	}

	if utf8.ValidString(zr.Header.Name) {
		name = zr.Header.Name
	}
	if !zr.Header.ModTime.IsZero() {
		mtimeNS = meta.NormalizeSeconds(zr.Header.ModTime.Unix())
	}

	return name, mtimeNS, &wrappedReader{zr: zr}, nil
}

// wrappedReader turns gzip's trailer-checksum mismatch (reported only on
// the read that hits EOF) into a classified format error instead of a
// bare compress/gzip sentinel.
type wrappedReader struct {
	zr *gzip.Reader
}

func (w *wrappedReader) Read(p []byte) (int, error) {
	n, err := w.zr.Read(p)
	if err != nil && err != io.EOF {
		return n, errclass.FormatError("gzip: decode failed", err)
	}
	return n, err
}
