// Package adapter defines the common contract every per-format archive
// adapter implements: an iterator over (entry-metadata, entry-stream)
// pairs.
package adapter

import (
	"io"

	"github/sabouaram/ci-unpack/internal/meta"
)

// Entry is one member yielded by an adapter: a tar/zip/ar member, an MBR
// partition, an ext4 inode, or the single decoded stream of a
// compression-format adapter.
type Entry struct {
	// Name is the entry's own path component (not yet pushed onto a
	// frame's path stack).
	Name string
	// Size is the entry's declared length, or -1 if unknown ahead of
	// time (true for streaming compression formats).
	Size int64
	// Meta carries whatever ownership/timestamp/type information the
	// adapter could translate from its native format.
	Meta meta.Metadata
	// Body is the entry's content. Adapters must not close the caller's
	// underlying handle when Body is exhausted or discarded.
	Body io.Reader
}

// Adapter iterates over a multi-entry container's members in its natural
// on-disk order. Next returns io.EOF once exhausted.
type Adapter interface {
	Next() (Entry, error)
}

// Reopener is implemented by adapters backed by cheap random access (zip's
// central directory, an MBR partition table), letting the controller
// re-fetch one entry's raw bytes by index after a failed speculative
// recursion, instead of having to pre-spill every entry just in case.
type Reopener interface {
	ReopenAt(index int) (Entry, error)
}
