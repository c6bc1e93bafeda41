package diskimage_test

import (
	"bytes"
	"io"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github/sabouaram/ci-unpack/internal/adapter/diskimage"
)

func TestDiskImage(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "diskimage suite")
}

// buildMBR lays out a boot sector with one partition at sector lba,
// spanning nSectors, followed by that many sectors of fill.
func buildMBR(lba, nSectors uint32, fill byte) []byte {
	total := (int(lba) + int(nSectors)) * 512
	img := make([]byte, total)

	off := 0x1BE
	img[off+4] = 0x83 // Linux partition type, anything non-zero
	putLE32(img[off+8:off+12], lba)
	putLE32(img[off+12:off+16], nSectors)
	img[510], img[511] = 0x55, 0xAA

	for i := int(lba) * 512; i < total; i++ {
		img[i] = fill
	}
	return img
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

var _ = Describe("TC-DI-001: MBR partition table", func() {
	It("TC-DI-002: exposes the one non-empty partition with the right byte range", func() {
		img := buildMBR(2, 3, 0xAB)
		ad, err := diskimage.Open(bytes.NewReader(img))
		Expect(err).ToNot(HaveOccurred())

		entry, err := ad.Next()
		Expect(err).ToNot(HaveOccurred())
		Expect(entry.Name).To(Equal("p1"))
		Expect(entry.Size).To(Equal(int64(3 * 512)))

		got, err := io.ReadAll(entry.Body)
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(HaveLen(3 * 512))
		for _, b := range got {
			Expect(b).To(Equal(byte(0xAB)))
		}

		_, err = ad.Next()
		Expect(err).To(Equal(io.EOF))
	})

	It("TC-DI-003: ReopenAt re-slices the same partition independent of iteration state", func() {
		img := buildMBR(1, 1, 0xCD)
		ad, err := diskimage.Open(bytes.NewReader(img))
		Expect(err).ToNot(HaveOccurred())

		_, err = ad.Next()
		Expect(err).ToNot(HaveOccurred())

		reopened, err := ad.ReopenAt(0)
		Expect(err).ToNot(HaveOccurred())
		got, err := io.ReadAll(reopened.Body)
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(bytes.Repeat([]byte{0xCD}, 512)))
	})

	It("TC-DI-004: rejects a sector with no boot signature", func() {
		img := make([]byte, 512)
		_, err := diskimage.Open(bytes.NewReader(img))
		Expect(err).To(HaveOccurred())
	})
})
