// Package bzip2f adapts the standard library's read-only bzip2 decoder.
// bzip2 carries no filename or mtime, unlike gzip.
package bzip2f

import (
	"compress/bzip2"
	"io"

	"github/sabouaram/ci-unpack/internal/errclass"
)

// Open decodes a bzip2 stream from r.
func Open(r io.Reader) (io.Reader, error) {
	return &wrappedReader{br: bzip2.NewReader(r)}, nil
}

type wrappedReader struct {
	br io.Reader
}

func (w *wrappedReader) Read(p []byte) (int, error) {
	n, err := w.br.Read(p)
	if err != nil && err != io.EOF {
		return n, errclass.FormatError("bzip2: decode failed", err)
	}
	return n, err
}
