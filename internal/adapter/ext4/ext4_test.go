package ext4_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github/sabouaram/ci-unpack/internal/adapter/ext4"
)

func TestExt4(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ext4 suite")
}

const blockSize = 1024

func putU16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// writeExtentHeader lays out a single-extent inode.iBlock: one leaf extent
// pointing at startBlock, covering length blocks.
func writeExtentHeader(iBlock []byte, startBlock uint64, length uint16) {
	putU16(iBlock[0:2], 0xF30A) // magic
	putU16(iBlock[2:4], 1)      // entries
	putU16(iBlock[4:6], 4)      // max
	putU16(iBlock[6:8], 0)      // depth: leaf

	rec := iBlock[12:24]
	putU32(rec[0:4], 0) // logical block
	putU16(rec[4:6], length)
	putU16(rec[6:8], uint16(startBlock>>32))
	putU32(rec[8:12], uint32(startBlock))
}

// buildMinimalExt4 lays out a single-group ext4 image with root directory
// inode 2 containing one regular file "hello" (inode 12, content "hello").
// Only the fields internal/adapter/ext4 actually reads are populated; block
// and inode bitmaps are never consulted by that reader and are omitted.
func buildMinimalExt4() []byte {
	const (
		blockSuperblock = 1
		blockGDT        = 2
		blockInodeTable = 3 // 2 blocks: 3, 4 (16 inodes * 128 bytes = 2048 bytes)
		blockDirData    = 5
		blockFileData   = 6
		inodesCount     = 16
		inodesPerGroup  = 16
		inodeSize       = 128
		rootInode       = 2
		helloInode      = 12
	)

	img := make([]byte, (blockFileData+1)*blockSize)

	sb := img[blockSuperblock*blockSize : blockSuperblock*blockSize+1024]
	putU32(sb[0x0:0x4], inodesCount)
	putU32(sb[0x18:0x1C], 0) // log_block_size: blockSize = 1024 << 0
	putU32(sb[0x28:0x2C], inodesPerGroup)
	putU16(sb[0x58:0x5A], inodeSize)
	putU32(sb[0x60:0x64], 0) // feature_incompat: no 64bit group descriptors
	sb[0x38], sb[0x39] = 0x53, 0xEF

	gdt := img[blockGDT*blockSize:]
	putU32(gdt[0x8:0xC], blockInodeTable)

	inodeAt := func(num int) []byte {
		group := (num - 1) / inodesPerGroup
		Expect(group).To(Equal(0))
		idx := (num - 1) % inodesPerGroup
		off := blockInodeTable*blockSize + idx*inodeSize
		return img[off : off+inodeSize]
	}

	root := inodeAt(rootInode)
	putU16(root[0x0:0x2], 0x4000|0755)
	putU32(root[0x4:0x8], blockSize) // size: one directory block
	putU32(root[0x20:0x24], 0x80000) // flags: extents
	writeExtentHeader(root[0x28:0x64], blockDirData, 1)

	hello := inodeAt(helloInode)
	putU16(hello[0x0:0x2], 0x8000|0644)
	putU32(hello[0x4:0x8], 5) // size: len("hello")
	putU32(hello[0x20:0x24], 0x80000)
	writeExtentHeader(hello[0x28:0x64], blockFileData, 1)

	dir := img[blockDirData*blockSize : blockDirData*blockSize+blockSize]
	writeDirEntry(dir, 0, rootInode, ".")
	writeDirEntry(dir, 9, rootInode, "..")
	writeDirEntry(dir, 19, helloInode, "hello")

	copy(img[blockFileData*blockSize:], []byte("hello"))

	return img
}

// writeDirEntry writes one ext4_dir_entry_2 at off, with rec_len set to
// exactly 8+len(name) (the reader has no alignment requirement).
func writeDirEntry(block []byte, off int, ino uint32, name string) {
	putU32(block[off:off+4], ino)
	putU16(block[off+4:off+6], uint16(8+len(name)))
	block[off+6] = byte(len(name))
	block[off+7] = 0
	copy(block[off+8:], name)
}

var _ = Describe("TC-E4-001: ext4 directory walk", func() {
	It("TC-E4-002: emits the one regular file reachable from the root, skipping . and ..", func() {
		img := buildMinimalExt4()
		ad, err := ext4.Open(bytes.NewReader(img))
		Expect(err).ToNot(HaveOccurred())

		entry, err := ad.Next()
		Expect(err).ToNot(HaveOccurred())
		Expect(entry.Name).To(Equal("hello"))
		Expect(entry.Size).To(Equal(int64(5)))

		got, err := io.ReadAll(entry.Body)
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal([]byte("hello")))

		_, err = ad.Next()
		Expect(err).To(Equal(io.EOF))
	})

	It("TC-E4-003: rejects an image with no ext4 superblock magic", func() {
		img := make([]byte, 4096)
		_, err := ext4.Open(bytes.NewReader(img))
		Expect(err).To(HaveOccurred())
	})
})
