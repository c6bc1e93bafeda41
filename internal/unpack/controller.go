// Package unpack implements the recursive decompress/extract/classify
// engine: peek a format off the front of a stream, recurse speculatively
// into whatever it looks like, and roll back to a single opaque leaf when
// the speculation turns out wrong.
package unpack

import (
	"bytes"
	"fmt"
	"io"

	"github/sabouaram/ci-unpack/internal/classify"
	"github/sabouaram/ci-unpack/internal/errclass"
	"github/sabouaram/ci-unpack/internal/frame"
	"github/sabouaram/ci-unpack/internal/log"
	"github/sabouaram/ci-unpack/internal/meta"
	"github/sabouaram/ci-unpack/internal/sink"
	"github/sabouaram/ci-unpack/internal/tee"
)

// Options tunes the controller's behavior.
type Options struct {
	// MaxDepth bounds recursion; a frame at or past this depth is always
	// treated as opaque, regardless of what it classifies as.
	MaxDepth int
	// ListOnly suppresses payload bytes on every emitted record (metadata
	// only), for the CLI's -t/--list mode.
	ListOnly bool
}

// DefaultMaxDepth matches the documented default for -d/--max-depth.
const DefaultMaxDepth = 256

// Controller drives recursive unpacking and writes the resulting record
// stream to Out.
type Controller struct {
	Out  io.Writer
	Opts Options
	Log  *log.Logger
}

// New builds a Controller. A nil logger discards all log output. MaxDepth 0
// is a legitimate caller choice (depth ≥ 0 per the documented flag contract)
// and is left as-is; only a negative value is replaced with DefaultMaxDepth.
func New(out io.Writer, opts Options, logger *log.Logger) *Controller {
	if opts.MaxDepth < 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Controller{Out: out, Opts: opts, Log: logger}
}

func (c *Controller) warnf(format string, args ...any) {
	if c.Log != nil {
		c.Log.Warnf(format, args...)
	}
}

// Unpack is the entry point for one top-level input: classify, recurse,
// and on total failure fall back to emitting the input as a single
// unrecognised leaf.
func (c *Controller) Unpack(t tee.Tee, fr *frame.Frame) error {
	err := c.unpackOrDie(t, fr)
	if err == nil {
		return nil
	}

	v := errclass.Classify(err)
	if v == errclass.Fatal {
		return err
	}
	if v == errclass.OtherFormatError {
		c.warnf("thought we could unpack %s but couldn't: %v", fr.Path.Innermost(), err)
	}

	if rerr := t.Reset(); rerr != nil {
		return fmt.Errorf("unpack: %s: %w", fr.Path.Innermost(), rerr)
	}
	return c.rollbackWhole(t, fr, meta.Unrecognised, "")
}

// unpackOrDie peeks a classification prefix and dispatches to whichever
// format-specific handler matches. Any returned error is either Fatal (to
// propagate) or a Rewind/OtherFormatError verdict for the caller to
// absorb via rollback.
func (c *Controller) unpackOrDie(t tee.Tee, fr *frame.Frame) error {
	if fr.Depth >= c.Opts.MaxDepth {
		return errclass.ErrRewind
	}

	prefix, err := peekPrefix(t)
	if err != nil {
		return err
	}

	tag := classify.Classify(prefix)

	switch tag {
	case classify.Opaque:
		return errclass.ErrRewind
	case classify.GZip, classify.BZip2, classify.Xz:
		return c.dispatchCompression(tag, prefix, t, fr)
	default:
		return c.dispatchArchive(tag, prefix, t, fr)
	}
}

// peekPrefix reads up to classify.MaxPrefix bytes of t without requiring a
// later Reset: every Tee implementation mirrors every byte Read, so the
// bytes pulled here are still available through AsSeekable, and callers
// that need a byte-0 Reader reconstruct one with io.MultiReader instead of
// relying on Reset (which FailingTee always refuses).
func peekPrefix(t tee.Tee) ([]byte, error) {
	buf := make([]byte, classify.MaxPrefix)
	n := 0
	for n < len(buf) {
		m, err := t.Read(buf[n:])
		n += m
		if err != nil {
			if err == io.EOF {
				break
			}
			return buf[:n], err
		}
		if m == 0 {
			break
		}
	}
	return buf[:n], nil
}

// fromByteZero reconstructs a byte-0 Reader over t given the prefix
// already pulled off its front.
func fromByteZero(prefix []byte, t tee.Tee) io.Reader {
	return io.MultiReader(bytes.NewReader(prefix), t)
}

// rollbackWhole emits raw (starting at its current position) as a single
// leaf at fr, tagged with the given container health.
func (c *Controller) rollbackWhole(raw io.Reader, fr *frame.Frame, kind meta.ContainerHealthKind, msg string) error {
	spill := tee.NewTempFileTee(raw)
	n, err := spill.LenAndReset()
	if err != nil {
		return fmt.Errorf("unpack: %s: spilling for rollback: %w", fr.Path.Innermost(), err)
	}
	fr.Meta.Container = meta.ContainerHealth{Kind: kind, Message: msg}
	return c.emit(fr, n, spill)
}

// EmitMetadataOnly writes fr's record with no payload (a directory,
// symlink, or device node discovered directly by the CLI's disk-tree walk,
// not produced through an adapter).
func (c *Controller) EmitMetadataOnly(fr *frame.Frame) error {
	return c.emit(fr, 0, nil)
}

// emit writes fr's one allowed record. A frame already marked emitted (or
// one that some deeper recursion already emitted through) is silently
// skipped.
func (c *Controller) emit(fr *frame.Frame, length int64, content io.Reader) error {
	if !fr.CanEmit() {
		return nil
	}
	fr.MarkEmitted()

	rec := sink.Record{
		Paths:          fr.Path.Components(),
		Len:            uint64(length),
		ATime:          fr.Meta.ATime,
		MTime:          fr.Meta.MTime,
		CTime:          fr.Meta.CTime,
		BTime:          fr.Meta.BTime,
		Ownership:      fr.Meta.Ownership,
		Type:           fr.Meta.Type,
		Container:      fr.Meta.Container,
		Xattrs:         fr.Meta.SortedXattrs(),
		ContentFollows: !c.Opts.ListOnly && content != nil && length > 0,
	}

	var payload io.Reader
	if rec.ContentFollows {
		payload = content
	}

	return sink.Encode(c.Out, rec, payload)
}
