package unpack

import (
	"fmt"
	"io"

	"github/sabouaram/ci-unpack/internal/adapter"
	"github/sabouaram/ci-unpack/internal/adapter/deb"
	"github/sabouaram/ci-unpack/internal/adapter/diskimage"
	"github/sabouaram/ci-unpack/internal/adapter/ext4"
	"github/sabouaram/ci-unpack/internal/adapter/tarf"
	"github/sabouaram/ci-unpack/internal/adapter/zipf"
	"github/sabouaram/ci-unpack/internal/classify"
	"github/sabouaram/ci-unpack/internal/errclass"
	"github/sabouaram/ci-unpack/internal/frame"
	"github/sabouaram/ci-unpack/internal/meta"
	"github/sabouaram/ci-unpack/internal/tee"
)

// dispatchArchive opens tag's adapter over t and iterates its members.
// Tar and ar(deb) are read sequentially off a single forward-only stream;
// zip, an MBR disk image, and ext4 need random access, obtained via
// t.AsSeekable().
func (c *Controller) dispatchArchive(tag classify.FormatTag, prefix []byte, t tee.Tee, fr *frame.Frame) error {
	switch tag {
	case classify.Tar:
		ad := tarf.Open(fromByteZero(prefix, t))
		return c.iterateSequential(ad, fr, func() (io.Reader, error) {
			if err := t.Reset(); err != nil {
				return nil, err
			}
			return t, nil
		})

	case classify.Deb:
		ad, err := deb.Open(fromByteZero(prefix, t))
		if err != nil {
			return c.rollbackAfterOpenFailure(t, fr, err)
		}
		return c.iterateSequential(ad, fr, func() (io.Reader, error) {
			if err := t.Reset(); err != nil {
				return nil, err
			}
			return t, nil
		})

	case classify.Zip:
		sk, size, err := seekableWithSize(t)
		if err != nil {
			return err
		}
		ad, err := zipf.Open(sk, size)
		if err != nil {
			return c.rollbackAfterOpenFailureSeekable(sk, fr, err)
		}
		return c.iterateReopenable(ad, fr, sk)

	case classify.DiskImage:
		sk, _, err := seekableWithSize(t)
		if err != nil {
			return err
		}
		ad, err := diskimage.Open(sk)
		if err != nil {
			return c.rollbackAfterOpenFailureSeekable(sk, fr, err)
		}
		return c.iterateReopenable(ad, fr, sk)

	case classify.Ext4:
		sk, _, err := seekableWithSize(t)
		if err != nil {
			return err
		}
		ad, err := ext4.Open(sk)
		if err != nil {
			return c.rollbackAfterOpenFailureSeekable(sk, fr, err)
		}
		return c.iterateSequential(ad, fr, func() (io.Reader, error) {
			if _, err := sk.Seek(0, io.SeekStart); err != nil {
				return nil, err
			}
			return sk, nil
		})

	default:
		return fmt.Errorf("unpack: unhandled container tag %v", tag)
	}
}

func seekableWithSize(t tee.Tee) (tee.Seekable, int64, error) {
	sk, err := t.AsSeekable()
	if err != nil {
		return nil, 0, err
	}
	size, err := sk.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, err
	}
	if _, err := sk.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}
	return sk, size, nil
}

func (c *Controller) rollbackAfterOpenFailure(t tee.Tee, fr *frame.Frame, cause error) error {
	v := errclass.Classify(cause)
	if v == errclass.Fatal {
		return fmt.Errorf("unpack: %s: %w", fr.Path.Innermost(), cause)
	}
	if v == errclass.OtherFormatError {
		c.warnf("thought we could unpack %s but couldn't: %v", fr.Path.Innermost(), cause)
	}
	if err := t.Reset(); err != nil {
		return err
	}
	return c.rollbackWhole(t, fr, meta.OpenError, cause.Error())
}

func (c *Controller) rollbackAfterOpenFailureSeekable(sk tee.Seekable, fr *frame.Frame, cause error) error {
	v := errclass.Classify(cause)
	if v == errclass.Fatal {
		return fmt.Errorf("unpack: %s: %w", fr.Path.Innermost(), cause)
	}
	if v == errclass.OtherFormatError {
		c.warnf("thought we could unpack %s but couldn't: %v", fr.Path.Innermost(), cause)
	}
	if _, err := sk.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return c.rollbackWhole(sk, fr, meta.OpenError, cause.Error())
}

// iterateSequential walks ad's members in order, eagerly spilling each
// entry's body into a TempFileTee before recursing (sequential adapters
// have no cheap re-fetch, so the spill itself is what makes rollback
// possible). onFirstFailure builds the raw, byte-0 view of the whole
// container, used only if the very first Next() call fails before any
// entry was produced.
func (c *Controller) iterateSequential(ad adapter.Adapter, fr *frame.Frame, onFirstFailure func() (io.Reader, error)) error {
	index := 0
	for {
		entry, err := ad.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			v := errclass.Classify(err)
			if v == errclass.Fatal {
				return fmt.Errorf("unpack: %s: reading member %d: %w", fr.Path.Innermost(), index, err)
			}
			if v == errclass.OtherFormatError {
				c.warnf("thought we could unpack %s but couldn't: %v", fr.Path.Innermost(), err)
			}
			if index > 0 {
				// Entries already emitted stand; a sequential format
				// gives no way to isolate the unread remainder's raw
				// bytes, so there is nothing left to roll back to.
				return nil
			}
			raw, rerr := onFirstFailure()
			if rerr != nil {
				return rerr
			}
			return c.rollbackWhole(raw, fr, meta.OpenError, err.Error())
		}

		if err := c.handleEntry(fr, entry, func(body io.Reader, child *frame.Frame) error {
			return c.recurseEagerSpill(body, child)
		}); err != nil {
			return err
		}
		index++
	}
}

// iterateReopenable walks ad's members, recursing with a FailingTee (cheap:
// no speculative spill) and reopening the member by index from sk on
// rollback.
func (c *Controller) iterateReopenable(ad interface {
	adapter.Adapter
	adapter.Reopener
}, fr *frame.Frame, sk tee.Seekable) error {
	index := 0
	for {
		entry, err := ad.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			v := errclass.Classify(err)
			if v == errclass.Fatal {
				return fmt.Errorf("unpack: %s: reading member %d: %w", fr.Path.Innermost(), index, err)
			}
			if v == errclass.OtherFormatError {
				c.warnf("thought we could unpack %s but couldn't: %v", fr.Path.Innermost(), err)
			}
			if index > 0 {
				return nil
			}
			if _, rerr := sk.Seek(0, io.SeekStart); rerr != nil {
				return rerr
			}
			return c.rollbackWhole(sk, fr, meta.OpenError, err.Error())
		}

		thisIndex := index
		if err := c.handleEntry(fr, entry, func(body io.Reader, child *frame.Frame) error {
			return c.recurseReopenable(ad, thisIndex, child, body)
		}); err != nil {
			return err
		}
		index++
	}
}

// handleEntry builds entry's child frame, fills in its metadata, and
// either emits it directly (no body: directory/symlink/device) or hands
// its body to recurse for speculative recursion.
func (c *Controller) handleEntry(fr *frame.Frame, entry adapter.Entry, recurse func(body io.Reader, child *frame.Frame) error) error {
	child := fr.Child(entry.Name)
	child.Meta = entry.Meta
	child.Meta.Container = meta.ContainerHealth{Kind: meta.Included}

	if entry.Body == nil {
		return c.emit(child, 0, nil)
	}
	return recurse(entry.Body, child)
}

// recurseEagerSpill mirrors body into a TempFileTee up front, then
// recurses; on failure it resets that spill (cheap: already fully
// buffered/cached) and emits it as child's leaf.
func (c *Controller) recurseEagerSpill(body io.Reader, child *frame.Frame) error {
	spill := tee.NewTempFileTee(body)
	recErr := c.unpackOrDie(spill, child)
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

	if err := spill.Reset(); err != nil {
		return err
	}
	n, err := spill.LenAndReset()
	if err != nil {
		return err
	}
	return c.emit(child, n, spill)
}

// recurseReopenable wraps body in a cheap FailingTee for the speculative
// attempt; on failure it re-fetches the member's raw bytes from ad by
// index rather than having pre-spilled them.
func (c *Controller) recurseReopenable(ad adapter.Reopener, index int, child *frame.Frame, body io.Reader) error {
	childTee := tee.NewFailingTee(body)
	recErr := c.unpackOrDie(childTee, child)
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

	fresh, err := ad.ReopenAt(index)
	if err != nil {
		return fmt.Errorf("unpack: %s: reopening for rollback: %w", child.Path.Innermost(), err)
	}
	if fresh.Body == nil {
		return c.emit(child, 0, nil)
	}

	spill := tee.NewTempFileTee(fresh.Body)
	n, err := spill.LenAndReset()
	if err != nil {
		return err
	}
	return c.emit(child, n, spill)
}
