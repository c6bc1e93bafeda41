// Package diskimage hand-rolls a reader for the MBR partition table. No
// partition-table library appears anywhere in the retrieval pack, so this
// walks the 512-byte boot sector directly: four 16-byte partition entries
// starting at offset 0x1BE, each giving an LBA start sector and a sector
// count.
package diskimage

import (
	"io"
	"strconv"

	"github/sabouaram/ci-unpack/internal/adapter"
	"github/sabouaram/ci-unpack/internal/errclass"
	"github/sabouaram/ci-unpack/internal/meta"
)

const (
	sectorSize    = 512
	tableOffset   = 0x1BE
	entrySize     = 16
	partitionSlot = 4
)

// partition is one decoded MBR table entry.
type partition struct {
	id         int
	partType   byte
	lbaStart   uint32
	numSectors uint32
}

// Adapter exposes an MBR's non-empty partitions as entries over a seekable,
// random-access source. Partition boundaries are known up front from the
// boot sector, so ReopenAt is just re-slicing — no eager spill is needed.
type Adapter struct {
	src        io.ReaderAt
	partitions []partition
	next       int
}

// Open reads the boot sector from src and decodes its partition table.
// Callers should have already classified the source as DiskImage.
func Open(src io.ReaderAt) (*Adapter, error) {
	sector := make([]byte, sectorSize)
	if _, err := src.ReadAt(sector, 0); err != nil {
		return nil, errclass.FormatError("diskimage: cannot read boot sector", err)
	}
	if sector[510] != 0x55 || sector[511] != 0xAA {
		return nil, errclass.FormatError("diskimage: bad boot signature", nil)
	}

	var parts []partition
	for i := 0; i < partitionSlot; i++ {
		off := tableOffset + i*entrySize
		entry := sector[off : off+entrySize]

		ptype := entry[4]
		if ptype == 0 {
			continue // empty slot
		}

		parts = append(parts, partition{
			id:         i + 1,
			partType:   ptype,
			lbaStart:   leUint32(entry[8:12]),
			numSectors: leUint32(entry[12:16]),
		})
	}

	return &Adapter{src: src, partitions: parts}, nil
}

// Next returns the next non-empty partition, or io.EOF once exhausted.
func (a *Adapter) Next() (adapter.Entry, error) {
	if a.next >= len(a.partitions) {
		return adapter.Entry{}, io.EOF
	}
	e, err := a.entryAt(a.next)
	a.next++
	return e, err
}

// ReopenAt re-slices partition index from the boot sector's table,
// independent of iteration state.
func (a *Adapter) ReopenAt(index int) (adapter.Entry, error) {
	return a.entryAt(index)
}

func (a *Adapter) entryAt(index int) (adapter.Entry, error) {
	if index < 0 || index >= len(a.partitions) {
		return adapter.Entry{}, io.EOF
	}
	p := a.partitions[index]

	start := int64(p.lbaStart) * sectorSize
	size := int64(p.numSectors) * sectorSize

	return adapter.Entry{
		Name: partitionName(p.id),
		Size: size,
		Meta: meta.Metadata{Type: meta.ItemType{Kind: meta.ItemRegularFile}},
		Body: io.NewSectionReader(a.src, start, size),
	}, nil
}

func partitionName(id int) string {
	return "p" + strconv.Itoa(id)
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
