package tee

import "io"

// FailingTee mirrors every read through an internal TempFileTee (so no
// byte is ever lost once read, even a small classification-prefix peek)
// but always refuses rewind itself. It is used for speculative recursion:
// if the recursion fails, the controller rewinds the *parent* Tee
// instead of this one.
type FailingTee struct {
	spill *TempFileTee
}

// NewFailingTee wraps src.
func NewFailingTee(src io.Reader) *FailingTee {
	return &FailingTee{spill: NewTempFileTee(src)}
}

func (t *FailingTee) Read(p []byte) (int, error) {
	return t.spill.Read(p)
}

func (t *FailingTee) Reset() error {
	return ErrUnsupportedFeature
}

func (t *FailingTee) LenAndReset() (int64, error) {
	return 0, ErrUnsupportedFeature
}

// AsSeekable hands back a seekable view over the whole stream, including
// any bytes already pulled through Read, since the internal spill mirrors
// from the first byte onward regardless of how far Read has progressed.
func (t *FailingTee) AsSeekable() (Seekable, error) {
	return t.spill.AsSeekable()
}

func (t *FailingTee) Close() error {
	return t.spill.Close()
}
