// Package tarf adapts the standard library's archive/tar to the iterator
// contract: one entry per archive member, translating ownership, mode,
// and timestamps.
package tarf

import (
	"archive/tar"
	"io"
	"unicode/utf8"

	"github/sabouaram/ci-unpack/internal/adapter"
	"github/sabouaram/ci-unpack/internal/errclass"
	"github/sabouaram/ci-unpack/internal/meta"
)

// Adapter iterates a tar stream's members in on-disk order.
type Adapter struct {
	tr *tar.Reader
}

// Open wraps r as a tar member iterator.
func Open(r io.Reader) *Adapter {
	return &Adapter{tr: tar.NewReader(r)}
}

// Next returns the next tar member, silently skipping the pax_global_header
// pseudo-entry, or io.EOF when the archive is exhausted.
func (a *Adapter) Next() (adapter.Entry, error) {
	for {
		hdr, err := a.tr.Next()
		if err == io.EOF {
			return adapter.Entry{}, io.EOF
		}
		if err != nil {
			return adapter.Entry{}, errclass.FormatError("tar: bad header", err)
		}

		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		entry := adapter.Entry{
			Name: hdr.Name,
			Size: hdr.Size,
			Meta: translate(hdr),
		}
		// Only regular files carry recursable content; directories,
		// symlinks, devices and fifos have nothing behind them to read.
		if hdr.Typeflag == tar.TypeReg || hdr.Typeflag == tar.TypeRegA {
			entry.Body = a.tr
		}
		return entry, nil
	}
}

func translate(hdr *tar.Header) meta.Metadata {
	m := meta.Metadata{
		MTime: meta.NormalizeSeconds(hdr.ModTime.Unix()),
		ATime: meta.NormalizeSeconds(hdr.AccessTime.Unix()),
		CTime: meta.NormalizeSeconds(hdr.ChangeTime.Unix()),
	}

	own := meta.Ownership{Kind: meta.OwnershipPosix, Mode: uint32(hdr.Mode)}
	if hdr.Uid != 0 || hdr.Uname != "" {
		own.User = &meta.Principal{ID: uint64(hdr.Uid)}
		if utf8.ValidString(hdr.Uname) {
			own.User.Name = hdr.Uname
		}
	}
	if hdr.Gid != 0 || hdr.Gname != "" {
		own.Group = &meta.Principal{ID: uint64(hdr.Gid)}
		if utf8.ValidString(hdr.Gname) {
			own.Group.Name = hdr.Gname
		}
	}
	m.Ownership = own

	m.Type = itemType(hdr)

	return m
}

func itemType(hdr *tar.Header) meta.ItemType {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return meta.ItemType{Kind: meta.ItemDirectory}
	case tar.TypeSymlink:
		return meta.ItemType{Kind: meta.ItemSymbolicLink, LinkTarget: hdr.Linkname}
	case tar.TypeLink:
		return meta.ItemType{Kind: meta.ItemHardLink, LinkTarget: hdr.Linkname}
	case tar.TypeChar:
		return meta.ItemType{Kind: meta.ItemCharDevice, Major: uint32(hdr.Devmajor), Minor: uint32(hdr.Devminor)}
	case tar.TypeBlock:
		return meta.ItemType{Kind: meta.ItemBlockDevice, Major: uint32(hdr.Devmajor), Minor: uint32(hdr.Devminor)}
	case tar.TypeFifo:
		return meta.ItemType{Kind: meta.ItemFifo}
	default:
		return meta.ItemType{Kind: meta.ItemRegularFile}
	}
}
