// Package deb hand-rolls a reader for the common/GNU "ar" container format
// used by .deb packages. No ar-format library appears anywhere in the
// retrieval pack, so this is implemented directly from the byte layout:
// an 8-byte magic, then a sequence of 60-byte member headers each
// followed by the member's data, padded to an even byte boundary.
package deb

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github/sabouaram/ci-unpack/internal/adapter"
	"github/sabouaram/ci-unpack/internal/errclass"
	"github/sabouaram/ci-unpack/internal/meta"
)

const (
	globalMagic = "!<arch>\n"
	headerSize  = 60
	endMagic    = "`\n"
)

// Adapter iterates an ar archive's members sequentially.
type Adapter struct {
	r       *bufio.Reader
	pending io.Reader // remaining bytes of the previous member's data + its pad byte, must be drained before the next header
}

// Open consumes the 8-byte global magic and returns an iterator over the
// remaining members. Callers should have already classified the stream as
// Deb (i.e. confirmed the magic and the debian-binary member signature).
func Open(r io.Reader) (*Adapter, error) {
	br := bufio.NewReaderSize(r, headerSize)

	magic := make([]byte, len(globalMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, errclass.FormatError("ar: truncated global header", err)
	}
	if string(magic) != globalMagic {
		return nil, errclass.FormatError("ar: bad global magic", nil)
	}

	return &Adapter{r: br}, nil
}

// Next returns the next member, or io.EOF once exhausted.
func (a *Adapter) Next() (adapter.Entry, error) {
	if a.pending != nil {
		if _, err := io.Copy(io.Discard, a.pending); err != nil {
			return adapter.Entry{}, errclass.FormatError("ar: draining previous member", err)
		}
		a.pending = nil
	}

	hdr := make([]byte, headerSize)
	n, err := io.ReadFull(a.r, hdr)
	if err == io.EOF && n == 0 {
		return adapter.Entry{}, io.EOF
	}
	if err != nil {
		return adapter.Entry{}, errclass.FormatError("ar: truncated member header", err)
	}

	if string(hdr[58:60]) != endMagic {
		return adapter.Entry{}, errclass.FormatError("ar: bad member end magic", nil)
	}

	name := strings.TrimRight(string(hdr[0:16]), " ")
	name = strings.TrimSuffix(name, "/") // GNU-format member names

	size, ok := parseDecimal(hdr[48:58])
	if !ok {
		return adapter.Entry{}, errclass.FormatError("ar: bad member size field", nil)
	}

	uid, _ := parseDecimal(hdr[16:22])
	gid, _ := parseDecimal(hdr[22:28])
	mode, _ := parseOctal(hdr[28:36])

	body := io.LimitReader(a.r, size)
	padded := body
	if size%2 != 0 {
		padded = io.MultiReader(body, io.LimitReader(a.r, 1))
	}
	a.pending = padded

	m := meta.Metadata{
		Ownership: meta.Ownership{
			Kind:  meta.OwnershipPosix,
			Mode:  uint32(mode),
			User:  &meta.Principal{ID: uint64(uid)},
			Group: &meta.Principal{ID: uint64(gid)},
		},
		Type: meta.ItemType{Kind: meta.ItemRegularFile},
	}

	return adapter.Entry{
		Name: name,
		Size: size,
		Meta: m,
		Body: body,
	}, nil
}

func parseDecimal(b []byte) (int64, bool) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil
}

func parseOctal(b []byte) (int64, bool) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(s, 8, 64)
	return v, err == nil
}
