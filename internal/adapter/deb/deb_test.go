package deb_test

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github/sabouaram/ci-unpack/internal/adapter/deb"
)

func TestDeb(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "deb suite")
}

// arMember appends one ar member (60-byte header + data + pad byte when
// data length is odd) to buf.
func arMember(buf *bytes.Buffer, name string, data []byte) {
	var hdr [60]byte
	copy(hdr[0:16], pad(name+"/", 16))
	copy(hdr[16:22], pad("0", 6))
	copy(hdr[22:28], pad("0", 6))
	copy(hdr[28:36], pad("100644", 8))
	copy(hdr[36:48], pad("0", 12))
	copy(hdr[48:58], pad(fmt.Sprintf("%d", len(data)), 10))
	hdr[58], hdr[59] = '`', '\n'

	buf.Write(hdr[:])
	buf.Write(data)
	if len(data)%2 != 0 {
		buf.WriteByte('\n')
	}
}

func pad(s string, n int) string {
	b := []byte(s)
	for len(b) < n {
		b = append(b, ' ')
	}
	return string(b[:n])
}

func buildAr(members map[string][]byte, order []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("!<arch>\n")
	for _, name := range order {
		arMember(&buf, name, members[name])
	}
	return buf.Bytes()
}

var _ = Describe("TC-DB-001: ar member iteration", func() {
	It("TC-DB-002: iterates members in order with correct names and sizes", func() {
		members := map[string][]byte{
			"debian-binary":  []byte("2.0\n"),
			"control.tar.gz": []byte("xxxxx"), // odd length, exercises the pad byte
			"data.tar.xz":    []byte("yyyyyyyy"),
		}
		order := []string{"debian-binary", "control.tar.gz", "data.tar.xz"}
		data := buildAr(members, order)

		ad, err := deb.Open(bytes.NewReader(data))
		Expect(err).ToNot(HaveOccurred())

		for _, name := range order {
			entry, err := ad.Next()
			Expect(err).ToNot(HaveOccurred())
			Expect(entry.Name).To(Equal(name))
			Expect(entry.Size).To(Equal(int64(len(members[name]))))

			got, err := io.ReadAll(entry.Body)
			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(Equal(members[name]))
		}

		_, err = ad.Next()
		Expect(err).To(Equal(io.EOF))
	})

	It("TC-DB-003: skips an unread member's trailing bytes before the next header", func() {
		members := map[string][]byte{
			"a": []byte("hello"),
			"b": []byte("world!!!"),
		}
		order := []string{"a", "b"}
		data := buildAr(members, order)

		ad, err := deb.Open(bytes.NewReader(data))
		Expect(err).ToNot(HaveOccurred())

		first, err := ad.Next()
		Expect(err).ToNot(HaveOccurred())
		Expect(first.Name).To(Equal("a"))
		// Deliberately don't read first.Body before asking for the next entry.

		second, err := ad.Next()
		Expect(err).ToNot(HaveOccurred())
		Expect(second.Name).To(Equal("b"))
		got, err := io.ReadAll(second.Body)
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(members["b"]))
	})

	It("TC-DB-004: rejects a stream with the wrong global magic", func() {
		_, err := deb.Open(bytes.NewReader([]byte("not an ar archive at all..")))
		Expect(err).To(HaveOccurred())
	})
})
