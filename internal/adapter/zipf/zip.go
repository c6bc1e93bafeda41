// Package zipf adapts the standard library's archive/zip. Because zip's
// central directory allows cheap random access, the recursion controller
// doesn't need to pre-spill every member speculatively: a failed
// recursion can just reopen the member by index.
package zipf

import (
	"archive/zip"
	"io"
	"os"

	"github/sabouaram/ci-unpack/internal/adapter"
	"github/sabouaram/ci-unpack/internal/errclass"
	"github/sabouaram/ci-unpack/internal/meta"
)

// Adapter iterates a zip archive's members in central-directory order and
// supports ReopenAt for the rollback protocol.
type Adapter struct {
	zr    *zip.Reader
	index int
}

// Open wraps a seekable, random-access view of a zip archive of the given
// total size.
func Open(ra io.ReaderAt, size int64) (*Adapter, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, errclass.FormatError("zip: invalid central directory", err)
	}
	return &Adapter{zr: zr}, nil
}

// Next returns the next member, or io.EOF once exhausted.
func (a *Adapter) Next() (adapter.Entry, error) {
	if a.index >= len(a.zr.File) {
		return adapter.Entry{}, io.EOF
	}
	e, err := a.entryAt(a.index)
	a.index++
	return e, err
}

// ReopenAt re-opens member index from the central directory, independent
// of iteration state — used by the controller to re-fetch one member's
// raw bytes after a failed speculative recursion.
func (a *Adapter) ReopenAt(index int) (adapter.Entry, error) {
	return a.entryAt(index)
}

func (a *Adapter) entryAt(index int) (adapter.Entry, error) {
	if index < 0 || index >= len(a.zr.File) {
		return adapter.Entry{}, io.EOF
	}

	f := a.zr.File[index]
	rc, err := f.Open()
	if err != nil {
		return adapter.Entry{}, errclass.FormatError("zip: cannot open member "+f.Name, err)
	}

	m := meta.Metadata{MTime: meta.NormalizeSeconds(f.Modified.Unix())}

	mode := f.Mode()
	if mode == 0 {
		return adapter.Entry{Name: f.Name, Size: int64(f.UncompressedSize64), Meta: m, Body: rc}, nil
	}

	m.Ownership = meta.Ownership{Kind: meta.OwnershipPosix, Mode: uint32(mode.Perm()) | posixTypeBits(mode)}

	switch {
	case mode.IsDir():
		m.Type = meta.ItemType{Kind: meta.ItemDirectory}
		rc.Close()
		return adapter.Entry{Name: f.Name, Size: 0, Meta: m, Body: nil}, nil
	case mode&os.ModeSymlink != 0:
		target, _ := io.ReadAll(rc)
		rc.Close()
		m.Type = meta.ItemType{Kind: meta.ItemSymbolicLink, LinkTarget: string(target)}
		return adapter.Entry{Name: f.Name, Size: 0, Meta: m, Body: nil}, nil
	default:
		m.Type = meta.ItemType{Kind: meta.ItemRegularFile}
		return adapter.Entry{Name: f.Name, Size: int64(f.UncompressedSize64), Meta: m, Body: rc}, nil
	}
}

// posixTypeBits derives the high-nibble mode bits meta.ItemTypeFromMode
// expects, from Go's os.FileMode representation (which uses its own
// high bits, not POSIX's).
func posixTypeBits(mode os.FileMode) uint32 {
	switch {
	case mode.IsDir():
		return 0x4 << 12
	case mode&os.ModeSymlink != 0:
		return 0xA << 12
	default:
		return 0x8 << 12
	}
}
