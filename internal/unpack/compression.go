package unpack

import (
	"fmt"
	"io"
	"strings"

	"github/sabouaram/ci-unpack/internal/adapter/bzip2f"
	"github/sabouaram/ci-unpack/internal/adapter/gzipf"
	"github/sabouaram/ci-unpack/internal/adapter/xzf"
	"github/sabouaram/ci-unpack/internal/classify"
	"github/sabouaram/ci-unpack/internal/errclass"
	"github/sabouaram/ci-unpack/internal/frame"
	"github/sabouaram/ci-unpack/internal/meta"
	"github/sabouaram/ci-unpack/internal/tee"
)

// dispatchCompression decodes a single-stream compression format, recurses
// speculatively into the decoded content, and on failure (including a
// delayed trailer-checksum error only surfaced by draining the decoded
// stream to its end) rolls back to re-emitting the original compressed
// bytes as one leaf at fr.
func (c *Controller) dispatchCompression(tag classify.FormatTag, prefix []byte, t tee.Tee, fr *frame.Frame) error {
	name, mtimeNS, decoded, err := openCompression(tag, fromByteZero(prefix, t))
	if err != nil {
		v := errclass.Classify(err)
		if v == errclass.Fatal {
			return err
		}
		if v == errclass.OtherFormatError {
			c.warnf("thought we could unpack %s but couldn't: %v", fr.Path.Innermost(), err)
		}
		return c.rollbackCompression(t, fr, err)
	}

	childName := stripCompressionSuffix(fr.Path.Innermost(), tag)
	if tag == classify.GZip && name != "" {
		childName = name
	}

	child := fr.Child(childName)
	if mtimeNS != 0 {
		child.Meta.MTime = mtimeNS
	}

	childTee := tee.NewFailingTee(decoded)
	recErr := c.unpackOrDie(childTee, child)
	if recErr == nil {
		// The child may have stopped reading as soon as its own format
		// recognized an end marker (tar's two zero blocks, for
		// instance), leaving trailing decoder state - a gzip CRC/ISIZE
		// trailer, for one - unvalidated. Drain the rest to force it.
		if _, derr := io.Copy(io.Discard, childTee); derr != nil {
			recErr = derr
		}
	}
	if recErr == nil {
		return nil
	}

	v := errclass.Classify(recErr)
	if v == errclass.Fatal {
		return fmt.Errorf("unpack: %s: %w", child.Path.Innermost(), recErr)
	}
	if v == errclass.OtherFormatError {
		c.warnf("thought we could unpack %s but couldn't: %v", child.Path.Innermost(), recErr)
	}

	return c.rollbackCompression(t, fr, recErr)
}

// rollbackCompression re-reads t's own raw bytes from the start and emits
// them as fr's single leaf. Decoding discarded whatever state it held;
// nothing about the decoder needs reconstructing since the emitted
// payload is the original compressed stream, not its decoded content.
func (c *Controller) rollbackCompression(t tee.Tee, fr *frame.Frame, cause error) error {
	if err := t.Reset(); err != nil {
		return err
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return c.rollbackWhole(t, fr, meta.Unrecognised, msg)
}

func openCompression(tag classify.FormatTag, r io.Reader) (name string, mtimeNS uint64, body io.Reader, err error) {
	switch tag {
	case classify.GZip:
		return gzipf.Open(r)
	case classify.BZip2:
		body, err = bzip2f.Open(r)
		return "", 0, body, err
	case classify.Xz:
		body, err = xzf.Open(r)
		return "", 0, body, err
	default:
		return "", 0, nil, fmt.Errorf("unpack: unhandled compression tag %v", tag)
	}
}

func stripCompressionSuffix(name string, tag classify.FormatTag) string {
	var suffix string
	switch tag {
	case classify.GZip:
		suffix = ".gz"
	case classify.BZip2:
		suffix = ".bz2"
	case classify.Xz:
		suffix = ".xz"
	}
	if suffix != "" && strings.HasSuffix(name, suffix) {
		return strings.TrimSuffix(name, suffix)
	}
	return ""
}
