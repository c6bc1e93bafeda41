package sink

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github/sabouaram/ci-unpack/internal/meta"
)

// ErrBadMagic is returned when a record's magic does not match Magic; per
// the wire contract, a consumer must reject such records.
var ErrBadMagic = fmt.Errorf("sink: bad record magic")

// Decoder reads a framed record stream written by Encode.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next reads the next record. If ContentFollows, payload holds exactly
// Len bytes; the caller must fully consume it before calling Next again.
// Returns io.EOF when the stream is exhausted cleanly.
func (d *Decoder) Next() (Record, io.Reader, error) {
	var rec Record

	var magic uint32
	if err := binary.Read(d.r, binary.LittleEndian, &magic); err != nil {
		return rec, nil, err
	}
	if magic != Magic {
		return rec, nil, ErrBadMagic
	}

	var bodyLen uint32
	if err := binary.Read(d.r, binary.LittleEndian, &bodyLen); err != nil {
		return rec, nil, err
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return rec, nil, err
	}

	rec, err := decodeBody(body)
	if err != nil {
		return rec, nil, err
	}

	var payload io.Reader
	if rec.ContentFollows {
		payload = io.LimitReader(d.r, int64(rec.Len))
	}

	return rec, payload, nil
}

type cursor struct {
	b []byte
}

func (c *cursor) u32() uint32 {
	v := binary.LittleEndian.Uint32(c.b[:4])
	c.b = c.b[4:]
	return v
}

func (c *cursor) u64() uint64 {
	v := binary.LittleEndian.Uint64(c.b[:8])
	c.b = c.b[8:]
	return v
}

func (c *cursor) byte() byte {
	v := c.b[0]
	c.b = c.b[1:]
	return v
}

func (c *cursor) bytes() []byte {
	n := c.u32()
	v := c.b[:n]
	c.b = c.b[n:]
	return v
}

func (c *cursor) string() string {
	return string(c.bytes())
}

func decodeBody(body []byte) (rec Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink: truncated record body: %v", r)
		}
	}()

	c := &cursor{b: body}

	n := c.u32()
	rec.Paths = make([]string, n)
	for i := range rec.Paths {
		rec.Paths[i] = c.string()
	}

	rec.Len = c.u64()
	rec.ATime = c.u64()
	rec.MTime = c.u64()
	rec.CTime = c.u64()
	rec.BTime = c.u64()

	rec.Ownership.Kind = meta.OwnershipKind(c.byte())
	if rec.Ownership.Kind == meta.OwnershipPosix {
		rec.Ownership.User = c.principal()
		rec.Ownership.Group = c.principal()
		rec.Ownership.Mode = c.u32()
	}

	wt := WireType(c.byte())
	switch wt {
	case WireDirectory:
		rec.Type.Kind = meta.ItemDirectory
	case WireFifo:
		rec.Type.Kind = meta.ItemFifo
	case WireSocket:
		rec.Type.Kind = meta.ItemSocket
	case WireSoftLink:
		rec.Type.Kind = meta.ItemSymbolicLink
		rec.Type.LinkTarget = c.string()
	case WireHardLink:
		rec.Type.Kind = meta.ItemHardLink
		rec.Type.LinkTarget = c.string()
	case WireCharDevice:
		rec.Type.Kind = meta.ItemCharDevice
		rec.Type.Major = c.u32()
		rec.Type.Minor = c.u32()
	case WireBlockDevice:
		rec.Type.Kind = meta.ItemBlockDevice
		rec.Type.Major = c.u32()
		rec.Type.Minor = c.u32()
	default:
		rec.Type.Kind = meta.ItemRegularFile
	}

	rec.Container.Kind = meta.ContainerHealthKind(c.byte())
	if rec.Container.Kind == meta.OpenError || rec.Container.Kind == meta.ReadError {
		rec.Container.Message = c.string()
	}

	xn := c.u32()
	rec.Xattrs = make([]meta.XattrPair, xn)
	for i := range rec.Xattrs {
		rec.Xattrs[i].Name = c.string()
		rec.Xattrs[i].Value = c.bytes()
	}

	rec.ContentFollows = c.byte() != 0

	return rec, nil
}

func (c *cursor) principal() *meta.Principal {
	if c.byte() == 0 {
		return nil
	}
	return &meta.Principal{ID: c.u64(), Name: c.string()}
}
