// Package ext4 hand-rolls a minimal ext4 filesystem reader: superblock,
// block group descriptors, inode table, extent-mapped file data, and
// classic linear directory entries. No ext4 library appears anywhere in
// the retrieval pack. Journal replay, htree directory indices, and
// inline-data inodes are out of scope; directories are read as flat
// ext4_dir_entry_2 sequences. Data blocks come from the extent tree, or,
// for inodes without the extents flag, from the first 12 direct block
// pointers only (indirect blocks are not followed).
package ext4

import (
	"encoding/binary"
	"io"
	"strings"

	"github/sabouaram/ci-unpack/internal/adapter"
	"github/sabouaram/ci-unpack/internal/errclass"
	"github/sabouaram/ci-unpack/internal/meta"
)

const (
	superblockOffset = 1024
	superblockSize   = 1024
	rootInode        = 2

	extentMagic = 0xF30A
	flagExtents = 0x80000

	incompat64Bit = 0x80
)

type superblock struct {
	inodesCount    uint32
	blockSize      uint32
	inodesPerGroup uint32
	inodeSize      uint16
	descSize       uint16
}

// Adapter walks an ext4 filesystem's directory tree from the root inode and
// exposes every reachable inode as an entry, in directory-walk order.
type Adapter struct {
	entries []adapter.Entry
	next    int
}

// Open reads the superblock, group descriptor table, and walks the
// directory tree rooted at inode 2, eagerly materializing every entry's
// metadata (but not file content, which streams lazily from src).
func Open(src io.ReaderAt) (*Adapter, error) {
	fs, err := newFilesystem(src)
	if err != nil {
		return nil, err
	}

	var entries []adapter.Entry
	if err := fs.walk(rootInode, "", &entries); err != nil {
		return nil, err
	}

	return &Adapter{entries: entries}, nil
}

// Next returns the next entry in directory-walk order, or io.EOF once
// exhausted.
func (a *Adapter) Next() (adapter.Entry, error) {
	if a.next >= len(a.entries) {
		return adapter.Entry{}, io.EOF
	}
	e := a.entries[a.next]
	a.next++
	return e, nil
}

type filesystem struct {
	src  io.ReaderAt
	sb   superblock
	gdt  []groupDesc
	seen map[uint32]bool // cycle guard against corrupt/hostile directory trees
}

type groupDesc struct {
	inodeTable uint64
}

func newFilesystem(src io.ReaderAt) (*filesystem, error) {
	raw := make([]byte, superblockSize)
	if _, err := src.ReadAt(raw, superblockOffset); err != nil {
		return nil, errclass.FormatError("ext4: cannot read superblock", err)
	}
	if raw[0x38] != 0x53 || raw[0x39] != 0xEF {
		return nil, errclass.FormatError("ext4: bad superblock magic", nil)
	}

	logBlockSize := binary.LittleEndian.Uint32(raw[0x18:0x1C])
	inodeSize := binary.LittleEndian.Uint16(raw[0x58:0x5A])
	if inodeSize == 0 {
		inodeSize = 128
	}
	featureIncompat := binary.LittleEndian.Uint32(raw[0x60:0x64])
	descSize := uint16(32)
	if featureIncompat&incompat64Bit != 0 {
		if v := binary.LittleEndian.Uint16(raw[0xFE:0x100]); v != 0 {
			descSize = v
		}
	}

	sb := superblock{
		inodesCount:    binary.LittleEndian.Uint32(raw[0x0:0x4]),
		blockSize:      1024 << logBlockSize,
		inodesPerGroup: binary.LittleEndian.Uint32(raw[0x28:0x2C]),
		inodeSize:      inodeSize,
		descSize:       descSize,
	}

	groupCount := (sb.inodesCount + sb.inodesPerGroup - 1) / sb.inodesPerGroup

	gdtBlock := uint64(1)
	if sb.blockSize == 1024 {
		gdtBlock = 2
	}

	gdtBytes := make([]byte, uint64(groupCount)*uint64(sb.descSize))
	if _, err := src.ReadAt(gdtBytes, int64(gdtBlock)*int64(sb.blockSize)); err != nil {
		return nil, errclass.FormatError("ext4: cannot read group descriptor table", err)
	}

	gdt := make([]groupDesc, groupCount)
	for i := range gdt {
		entry := gdtBytes[uint64(i)*uint64(sb.descSize):]
		lo := binary.LittleEndian.Uint32(entry[0x8:0xC])
		hi := uint32(0)
		if sb.descSize >= 64 {
			hi = binary.LittleEndian.Uint32(entry[0x28:0x2C])
		}
		gdt[i].inodeTable = uint64(hi)<<32 | uint64(lo)
	}

	return &filesystem{src: src, sb: sb, gdt: gdt, seen: map[uint32]bool{}}, nil
}

func (fs *filesystem) inodeOffset(num uint32) int64 {
	group := (num - 1) / fs.sb.inodesPerGroup
	indexInGroup := (num - 1) % fs.sb.inodesPerGroup
	tableOffset := fs.gdt[group].inodeTable * uint64(fs.sb.blockSize)
	return int64(tableOffset) + int64(indexInGroup)*int64(fs.sb.inodeSize)
}

type inode struct {
	mode   uint16
	uid    uint32
	gid    uint32
	size   uint64
	atime  uint64
	mtime  uint64
	ctime  uint64
	btime  uint64
	flags  uint32
	iBlock [60]byte
}

func (fs *filesystem) readInode(num uint32) (inode, error) {
	raw := make([]byte, fs.sb.inodeSize)
	if _, err := fs.src.ReadAt(raw, fs.inodeOffset(num)); err != nil {
		return inode{}, errclass.FormatError("ext4: cannot read inode", err)
	}

	var in inode
	in.mode = binary.LittleEndian.Uint16(raw[0x0:0x2])
	in.uid = uint32(binary.LittleEndian.Uint16(raw[0x2:0x4]))
	sizeLo := binary.LittleEndian.Uint32(raw[0x4:0x8])
	in.atime = normalizeTime(binary.LittleEndian.Uint32(raw[0x8:0xC]))
	in.ctime = normalizeTime(binary.LittleEndian.Uint32(raw[0xC:0x10]))
	in.mtime = normalizeTime(binary.LittleEndian.Uint32(raw[0x10:0x14]))
	in.gid = uint32(binary.LittleEndian.Uint16(raw[0x18:0x1A]))
	in.flags = binary.LittleEndian.Uint32(raw[0x20:0x24])
	copy(in.iBlock[:], raw[0x28:0x64])
	sizeHigh := binary.LittleEndian.Uint32(raw[0x6C:0x70])
	in.size = uint64(sizeHigh)<<32 | uint64(sizeLo)

	if fs.sb.inodeSize > 128 {
		extraISize := binary.LittleEndian.Uint16(raw[0x80:0x82])
		if extraISize >= 24 && int(0x80+extraISize) <= len(raw) {
			if 0x90+4 <= len(raw) {
				in.crtimeSet(raw)
			}
		}
	}

	return in, nil
}

func (in *inode) crtimeSet(raw []byte) {
	in.btime = normalizeTime(binary.LittleEndian.Uint32(raw[0x90:0x94]))
}

func normalizeTime(sec uint32) uint64 {
	// ext4 on-disk seconds are a plain uint32; this reader doesn't read the
	// extra epoch bits some 64-bit-time builds store, so very large values
	// cannot occur here and 0 already means "unknown" per the wire format.
	return meta.NormalizeSeconds(int64(sec))
}

// walk recursively visits dir inode num, appending one entry per child. It
// does not append an entry for num itself (the caller already did, for
// every inode except the synthetic root).
func (fs *filesystem) walk(num uint32, prefix string, out *[]adapter.Entry) error {
	if fs.seen[num] {
		return nil
	}
	fs.seen[num] = true

	in, err := fs.readInode(num)
	if err != nil {
		return err
	}

	for _, child := range fs.readDirEntries(in) {
		if child.name == "." || child.name == ".." {
			continue
		}

		childInode, err := fs.readInode(child.inode)
		if err != nil {
			return err
		}

		name := child.name
		if prefix != "" {
			name = prefix + "/" + name
		}

		e := fs.buildEntry(child.inode, childInode, name)
		*out = append(*out, e)

		if meta.ItemTypeFromMode(uint32(childInode.mode)) == meta.ItemDirectory {
			if err := fs.walk(child.inode, name, out); err != nil {
				return err
			}
		}
	}

	return nil
}

func (fs *filesystem) buildEntry(num uint32, in inode, name string) adapter.Entry {
	kind := meta.ItemTypeFromMode(uint32(in.mode))

	m := meta.Metadata{
		ATime: in.atime,
		MTime: in.mtime,
		CTime: in.ctime,
		BTime: in.btime,
		Ownership: meta.Ownership{
			Kind:  meta.OwnershipPosix,
			Mode:  uint32(in.mode) & 0xFFF,
			User:  meta.ResolvePrincipal(uint64(in.uid), false),
			Group: meta.ResolvePrincipal(uint64(in.gid), true),
		},
	}
	switch kind {
	case meta.ItemDirectory:
		m.Type = meta.ItemType{Kind: meta.ItemDirectory}
		return adapter.Entry{Name: name, Size: 0, Meta: m, Body: nil}
	case meta.ItemSymbolicLink:
		target := fs.readSymlinkTarget(in)
		m.Type = meta.ItemType{Kind: meta.ItemSymbolicLink, LinkTarget: target}
		return adapter.Entry{Name: name, Size: 0, Meta: m, Body: nil}
	case meta.ItemFifo, meta.ItemSocket, meta.ItemCharDevice, meta.ItemBlockDevice:
		m.Type = meta.ItemType{Kind: kind}
		return adapter.Entry{Name: name, Size: 0, Meta: m, Body: nil}
	default:
		m.Type = meta.ItemType{Kind: meta.ItemRegularFile}
		return adapter.Entry{Name: name, Size: int64(in.size), Meta: m, Body: fs.fileReader(in)}
	}
}

func (fs *filesystem) readSymlinkTarget(in inode) string {
	if in.size <= uint64(len(in.iBlock)) {
		return strings.TrimRight(string(in.iBlock[:in.size]), "\x00")
	}
	r := fs.fileReader(in)
	buf, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return string(buf)
}

type dirEntry struct {
	inode uint32
	name  string
}

// readDirEntries reads a directory's data blocks (found via extents, or
// direct block pointers for older non-extent inodes) and parses the
// classic linear ext4_dir_entry_2 layout.
func (fs *filesystem) readDirEntries(in inode) []dirEntry {
	var entries []dirEntry

	fs.forEachDataBlock(in, func(block []byte) {
		off := 0
		for off+8 <= len(block) {
			ino := binary.LittleEndian.Uint32(block[off : off+4])
			recLen := binary.LittleEndian.Uint16(block[off+4 : off+6])
			nameLen := block[off+6]
			if recLen < 8 {
				break
			}
			if ino != 0 && int(off)+8+int(nameLen) <= len(block) {
				name := string(block[off+8 : off+8+int(nameLen)])
				entries = append(entries, dirEntry{inode: ino, name: name})
			}
			off += int(recLen)
		}
	})

	return entries
}

func (fs *filesystem) fileReader(in inode) io.Reader {
	return &extentReader{fs: fs, in: in, remaining: in.size}
}

// extentReader streams a file's content block by block, resolved lazily
// from the inode's extent tree (or direct block list) as the caller reads.
type extentReader struct {
	fs        *filesystem
	in        inode
	blocks    []uint64
	loaded    bool
	idx       int
	cur       []byte
	remaining uint64
}

func (r *extentReader) Read(p []byte) (int, error) {
	if r.remaining == 0 {
		return 0, io.EOF
	}
	if !r.loaded {
		r.blocks = r.fs.blockList(r.in)
		r.loaded = true
	}

	if len(r.cur) == 0 {
		if r.idx >= len(r.blocks) {
			return 0, io.EOF
		}
		buf := make([]byte, r.fs.sb.blockSize)
		if _, err := r.fs.src.ReadAt(buf, int64(r.blocks[r.idx])*int64(r.fs.sb.blockSize)); err != nil {
			return 0, errclass.FormatError("ext4: cannot read file data block", err)
		}
		r.idx++
		r.cur = buf
	}

	n := copy(p, r.cur)
	if uint64(n) > r.remaining {
		n = int(r.remaining)
	}
	r.cur = r.cur[n:]
	r.remaining -= uint64(n)
	return n, nil
}

// forEachDataBlock reads every block backing in (via extents or direct
// pointers) and invokes fn with its raw content.
func (fs *filesystem) forEachDataBlock(in inode, fn func([]byte)) {
	for _, block := range fs.blockList(in) {
		buf := make([]byte, fs.sb.blockSize)
		if _, err := fs.src.ReadAt(buf, int64(block)*int64(fs.sb.blockSize)); err != nil {
			continue
		}
		fn(buf)
	}
}

// blockList resolves the full, in-order list of data block numbers backing
// an inode.
func (fs *filesystem) blockList(in inode) []uint64 {
	if in.flags&flagExtents != 0 {
		return fs.resolveExtents(in.iBlock[:])
	}
	return fs.resolveDirectBlocks(in.iBlock[:])
}

func (fs *filesystem) resolveDirectBlocks(iBlock []byte) []uint64 {
	var blocks []uint64
	for i := 0; i < 12 && (i+1)*4 <= len(iBlock); i++ {
		b := binary.LittleEndian.Uint32(iBlock[i*4 : i*4+4])
		if b == 0 {
			break
		}
		blocks = append(blocks, uint64(b))
	}
	return blocks
}

func (fs *filesystem) resolveExtents(header []byte) []uint64 {
	var blocks []uint64
	fs.walkExtentNode(header, &blocks)
	return blocks
}

func (fs *filesystem) walkExtentNode(node []byte, blocks *[]uint64) {
	if len(node) < 12 {
		return
	}
	magic := binary.LittleEndian.Uint16(node[0:2])
	if magic != extentMagic {
		return
	}
	entries := binary.LittleEndian.Uint16(node[2:4])
	depth := binary.LittleEndian.Uint16(node[6:8])

	for i := 0; i < int(entries); i++ {
		rec := node[12+i*12:]
		if len(rec) < 12 {
			break
		}
		if depth == 0 {
			length := binary.LittleEndian.Uint16(rec[4:6])
			if length > 32768 {
				length -= 32768 // uninitialized extent, still backed by real blocks
			}
			startLo := binary.LittleEndian.Uint32(rec[8:12])
			startHi := binary.LittleEndian.Uint16(rec[6:8])
			start := uint64(startHi)<<32 | uint64(startLo)
			for b := uint64(0); b < uint64(length); b++ {
				*blocks = append(*blocks, start+b)
			}
		} else {
			leafLo := binary.LittleEndian.Uint32(rec[4:8])
			leafHi := binary.LittleEndian.Uint16(rec[8:10])
			leaf := uint64(leafHi)<<32 | uint64(leafLo)

			buf := make([]byte, fs.sb.blockSize)
			if _, err := fs.src.ReadAt(buf, int64(leaf)*int64(fs.sb.blockSize)); err != nil {
				continue
			}
			fs.walkExtentNode(buf, blocks)
		}
	}
}
