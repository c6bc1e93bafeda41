package tee

import (
	"bufio"
	"io"
)

// seekableSrc is what BufReaderTee requires of its backing source: seek
// for Reset, ReadAt for the AsSeekable capability (zip/diskimage/ext4 need
// random access). *os.File satisfies both.
type seekableSrc interface {
	io.ReadSeeker
	io.ReaderAt
}

// BufReaderTee wraps a natively seekable source. Reset is a cheap Seek(0);
// no spill file is ever needed.
type BufReaderTee struct {
	src seekableSrc
	buf *bufio.Reader
}

// NewBufReaderTee wraps src, which must support Seek and ReadAt.
func NewBufReaderTee(src seekableSrc) *BufReaderTee {
	return &BufReaderTee{src: src, buf: bufio.NewReader(src)}
}

func (t *BufReaderTee) Read(p []byte) (int, error) {
	return t.buf.Read(p)
}

func (t *BufReaderTee) Reset() error {
	if _, err := t.src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	t.buf.Reset(t.src)
	return nil
}

func (t *BufReaderTee) LenAndReset() (int64, error) {
	cur, err := t.src.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := t.src.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	_ = cur
	if err := t.Reset(); err != nil {
		return 0, err
	}
	return end, nil
}

func (t *BufReaderTee) AsSeekable() (Seekable, error) {
	if err := t.Reset(); err != nil {
		return nil, err
	}
	return t.src, nil
}

func (t *BufReaderTee) Close() error {
	return nil
}
