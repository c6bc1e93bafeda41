// Package sink implements the emission side of the wire record-stream
// contract: a 4-byte magic, a length-delimited metadata record, followed
// by exactly Len payload bytes when ContentFollows is set.
package sink

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github/sabouaram/ci-unpack/internal/meta"
)

// Magic is the 4-byte value every metadata record begins with. A
// consumer must reject any record whose magic does not match.
const Magic uint32 = 0x0100C1C1

// WireType mirrors the record stream's `type` variant names, which differ
// slightly from the internal meta.ItemTypeKind names (RegularFile is
// "Normal" on the wire).
type WireType uint8

const (
	WireNormal WireType = iota
	WireDirectory
	WireFifo
	WireSocket
	WireSoftLink
	WireHardLink
	WireCharDevice
	WireBlockDevice
)

// Record is the in-memory form of one wire record.
type Record struct {
	Paths          []string
	Len            uint64
	ATime          uint64
	MTime          uint64
	CTime          uint64
	BTime          uint64
	Ownership      meta.Ownership
	Type           meta.ItemType
	Container      meta.ContainerHealth
	Xattrs         []meta.XattrPair
	ContentFollows bool
}

// wireTypeOf translates a meta.ItemType to its wire variant, applying the
// original implementation's default for an Unknown item type with no mode
// information: Directory when the payload is empty, Normal (regular file)
// otherwise. This resolves what would otherwise be an ambiguous wire
// record for Unknown-typed, zero-mode entries.
func wireTypeOf(t meta.ItemType, length uint64) WireType {
	switch t.Kind {
	case meta.ItemDirectory:
		return WireDirectory
	case meta.ItemFifo:
		return WireFifo
	case meta.ItemSocket:
		return WireSocket
	case meta.ItemSymbolicLink:
		return WireSoftLink
	case meta.ItemHardLink:
		return WireHardLink
	case meta.ItemCharDevice:
		return WireCharDevice
	case meta.ItemBlockDevice:
		return WireBlockDevice
	case meta.ItemRegularFile:
		return WireNormal
	default: // meta.ItemUnknown
		if length == 0 {
			return WireDirectory
		}
		return WireNormal
	}
}

// Encode writes rec to w in the framed wire format described in the
// external-interfaces section: magic, then a length-prefixed record body,
// then (if ContentFollows) exactly Len bytes copied from payload.
func Encode(w io.Writer, rec Record, payload io.Reader) error {
	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.LittleEndian, Magic); err != nil {
		return err
	}

	body, err := encodeBody(rec)
	if err != nil {
		return err
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(body))); err != nil {
		return err
	}
	if _, err := bw.Write(body); err != nil {
		return err
	}

	if rec.ContentFollows {
		if _, err := io.CopyN(bw, payload, int64(rec.Len)); err != nil {
			return fmt.Errorf("sink: writing %d payload bytes: %w", rec.Len, err)
		}
	}

	return bw.Flush()
}

func encodeBody(rec Record) ([]byte, error) {
	var buf []byte

	buf = appendU32(buf, uint32(len(rec.Paths)))
	for _, p := range rec.Paths {
		buf = appendString(buf, p)
	}

	buf = appendU64(buf, rec.Len)
	buf = appendU64(buf, rec.ATime)
	buf = appendU64(buf, rec.MTime)
	buf = appendU64(buf, rec.CTime)
	buf = appendU64(buf, rec.BTime)

	buf = append(buf, byte(rec.Ownership.Kind))
	if rec.Ownership.Kind == meta.OwnershipPosix {
		buf = appendPrincipal(buf, rec.Ownership.User)
		buf = appendPrincipal(buf, rec.Ownership.Group)
		buf = appendU32(buf, rec.Ownership.Mode)
	}

	wt := wireTypeOf(rec.Type, rec.Len)
	buf = append(buf, byte(wt))
	switch wt {
	case WireSoftLink, WireHardLink:
		buf = appendString(buf, rec.Type.LinkTarget)
	case WireCharDevice, WireBlockDevice:
		buf = appendU32(buf, rec.Type.Major)
		buf = appendU32(buf, rec.Type.Minor)
	}

	buf = append(buf, byte(rec.Container.Kind))
	if rec.Container.Kind == meta.OpenError || rec.Container.Kind == meta.ReadError {
		buf = appendString(buf, rec.Container.Message)
	}

	buf = appendU32(buf, uint32(len(rec.Xattrs)))
	for _, x := range rec.Xattrs {
		buf = appendString(buf, x.Name)
		buf = appendBytes(buf, x.Value)
	}

	if rec.ContentFollows {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	return buf, nil
}

func appendPrincipal(buf []byte, p *meta.Principal) []byte {
	if p == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = appendU64(buf, p.ID)
	buf = appendString(buf, p.Name)
	return buf
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendBytes(buf []byte, v []byte) []byte {
	buf = appendU32(buf, uint32(len(v)))
	return append(buf, v...)
}

func appendString(buf []byte, s string) []byte {
	return appendBytes(buf, []byte(s))
}
